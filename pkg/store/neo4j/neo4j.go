// Package neo4j implements store.GraphStore on a Neo4j database. Nodes are
// stored with the :Entity label and edges as :REL relationships carrying
// their type as a property.
package neo4j

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
}

type GraphStoreParams struct {
	URI      string
	User     string
	Password string
	Database string
	MaxPool  int
	Timeout  time.Duration
}

func NewGraphStore(ctx context.Context, params GraphStoreParams) (*GraphStore, error) {
	if params.URI == "" {
		return nil, fmt.Errorf("neo4j: uri is required")
	}
	if params.User == "" {
		params.User = "neo4j"
	}
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.User, params.Password, ""), func(cfg *neo4j.Config) {
		if params.MaxPool > 0 {
			cfg.MaxConnectionPoolSize = params.MaxPool
		}
		cfg.SocketConnectTimeout = params.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	s := &GraphStore{driver: driver, database: params.Database}
	s.ensureSchema(ctx)
	return s, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *GraphStore) ensureSchema(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, stmt := range []string{
		`CREATE CONSTRAINT entity_key_unique IF NOT EXISTS FOR (n:Entity) REQUIRE n.key IS UNIQUE`,
		`CREATE INDEX rel_id_idx IF NOT EXISTS FOR ()-[r:REL]-() ON (r.id)`,
	} {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			logger.Warn("[Store] Neo4j schema init failed", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func keyStrings(keys []common.IdentityKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func (s *GraphStore) Nodes(ctx context.Context, keys []common.IdentityKey) (map[common.IdentityKey]common.GraphNode, error) {
	out := make(map[common.IdentityKey]common.GraphNode, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `MATCH (n:Entity) WHERE n.key IN $keys RETURN properties(n) AS n`,
			map[string]any{"keys": keyStrings(keys)})
		if err != nil {
			return nil, err
		}
		return rows.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: read nodes: %w", err)
	}
	for _, rec := range res.([]*neo4j.Record) {
		n, err := nodeFromRecord(rec, "n")
		if err != nil {
			return nil, err
		}
		out[n.Key] = n
	}
	return out, nil
}

func (s *GraphStore) Edges(ctx context.Context, ids []string) (map[string]common.GraphEdge, error) {
	out := make(map[string]common.GraphEdge, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `MATCH (a:Entity)-[r:REL]->(b:Entity) WHERE r.id IN $ids
			RETURN a.key AS source, b.key AS target, properties(r) AS r`,
			map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		return rows.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: read edges: %w", err)
	}
	for _, rec := range res.([]*neo4j.Record) {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out[e.EdgeID()] = e
	}
	return out, nil
}

// Commit locks every touched node and edge by writing a lock stamp, then
// compares versions inside the same transaction. A mismatch rolls the
// transaction back.
func (s *GraphStore) Commit(ctx context.Context, batch store.GraphBatch) error {
	nodes := make([]map[string]any, 0, len(batch.Nodes))
	for _, n := range batch.Nodes {
		row, err := nodeRow(n)
		if err != nil {
			return err
		}
		nodes = append(nodes, row)
	}
	edges := make([]map[string]any, 0, len(batch.Edges))
	for _, e := range batch.Edges {
		row, err := edgeRow(e)
		if err != nil {
			return err
		}
		edges = append(edges, row)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			if err := checkVersions(ctx, tx, `
UNWIND $rows AS row
MERGE (n:Entity {key: row.key})
ON CREATE SET n.version = 0
SET n.locked_at = timestamp()
RETURN row.key AS id, n.version AS current, row.version AS expected`, nodes); err != nil {
				return nil, err
			}
			res, err := tx.Run(ctx, `
UNWIND $rows AS row
MATCH (n:Entity {key: row.key})
SET n += row.props, n.version = row.version + 1
REMOVE n.locked_at`, map[string]any{"rows": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(edges) > 0 {
			if err := checkVersions(ctx, tx, `
UNWIND $rows AS row
MATCH (a:Entity {key: row.source})
MATCH (b:Entity {key: row.target})
MERGE (a)-[r:REL {id: row.id}]->(b)
ON CREATE SET r.version = 0
SET r.locked_at = timestamp()
RETURN row.id AS id, r.version AS current, row.version AS expected`, edges); err != nil {
				return nil, err
			}
			res, err := tx.Run(ctx, `
UNWIND $rows AS row
MATCH (:Entity {key: row.source})-[r:REL {id: row.id}]->(:Entity {key: row.target})
SET r += row.props, r.version = row.version + 1
REMOVE r.locked_at`, map[string]any{"rows": edges})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func checkVersions(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, rows []map[string]any) error {
	res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
	if err != nil {
		return err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	if len(recs) != len(rows) {
		return fmt.Errorf("neo4j: %d of %d rows matched, missing endpoint", len(recs), len(rows))
	}
	for _, rec := range recs {
		id, _ := rec.Get("id")
		current, _ := rec.Get("current")
		expected, _ := rec.Get("expected")
		if toInt64(current) != toInt64(expected) {
			return fmt.Errorf("%w: %v at version %d, batch read %d", store.ErrUpsertConflict, id, toInt64(current), toInt64(expected))
		}
	}
	return nil
}

func (s *GraphStore) Query(ctx context.Context, q store.GraphQuery) ([]store.GraphFact, error) {
	patterns := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		if t = strings.Join(strings.Fields(strings.ToLower(t)), " "); t != "" {
			patterns = append(patterns, " "+t+" ")
		}
	}
	relTypes := q.RelTypes
	if relTypes == nil {
		relTypes = []string{}
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
MATCH (n:Entity)
WHERE n.key IN $keys OR any(p IN $patterns WHERE n.search CONTAINS p)
WITH collect(n) AS matched
UNWIND matched AS n
OPTIONAL MATCH (n)-[r:REL]-(m:Entity)
WHERE size($rels) = 0 OR r.type IN $rels
RETURN properties(n) AS n, properties(r) AS r, properties(startNode(r)) AS a, properties(endNode(r)) AS b,
	CASE WHEN r IS NULL THEN 0 ELSE
		(CASE WHEN startNode(r) IN matched THEN 1 ELSE 0 END) +
		(CASE WHEN endNode(r) IN matched THEN 1 ELSE 0 END)
	END AS matched`,
			map[string]any{"keys": keyStrings(q.Keys), "patterns": patterns, "rels": relTypes})
		if err != nil {
			return nil, err
		}
		return rows.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: query: %w", err)
	}

	var facts []store.GraphFact
	seen := make(map[string]bool)
	for _, rec := range res.([]*neo4j.Record) {
		if r, _ := rec.Get("r"); r == nil {
			if len(q.RelTypes) == 0 {
				n, err := nodeFromRecord(rec, "n")
				if err != nil {
					return nil, err
				}
				facts = append(facts, store.GraphFact{Source: n, Matched: 1})
			}
			continue
		}
		a, err := nodeFromRecord(rec, "a")
		if err != nil {
			return nil, err
		}
		b, err := nodeFromRecord(rec, "b")
		if err != nil {
			return nil, err
		}
		e, err := edgeFromProps(rec, a.Key, b.Key)
		if err != nil {
			return nil, err
		}
		if seen[e.EdgeID()] {
			continue
		}
		seen[e.EdgeID()] = true
		m, _ := rec.Get("matched")
		facts = append(facts, store.GraphFact{Source: a, Edge: &e, Target: b, Matched: int(toInt64(m))})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if (a.Edge == nil) != (b.Edge == nil) {
			return a.Edge != nil
		}
		if a.Matched != b.Matched {
			return a.Matched > b.Matched
		}
		return a.Edge != nil && a.Edge.Confidence > b.Edge.Confidence
	})
	if q.Limit > 0 && len(facts) > q.Limit {
		facts = facts[:q.Limit]
	}
	return facts, nil
}

func (s *GraphStore) Counts(ctx context.Context) (int64, int64, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
OPTIONAL MATCH (n:Entity) WITH count(n) AS nodes
OPTIONAL MATCH ()-[r:REL]->() RETURN nodes, count(r) AS edges`, nil)
		if err != nil {
			return nil, err
		}
		return rows.Single(ctx)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("neo4j: counts: %w", err)
	}
	rec := res.(*neo4j.Record)
	nodes, _ := rec.Get("nodes")
	edges, _ := rec.Get("edges")
	return toInt64(nodes), toInt64(edges), nil
}
