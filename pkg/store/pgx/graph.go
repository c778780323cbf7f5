package pgx

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// GraphStore keeps nodes and edges in two tables. Commits use optimistic
// version checks inside one transaction.
type GraphStore struct {
	conn pgxIConn
}

func NewGraphStore(conn pgxIConn) *GraphStore {
	return &GraphStore{conn: conn}
}

const nodeColumns = `key, type, attributes, attribute_sources, confidence, provenance, updated_at, version`
const edgeColumns = `source_key, target_key, type, attributes, attribute_sources, confidence, provenance, updated_at, version`

func scanNode(row pgxv5.Row) (common.GraphNode, error) {
	var n common.GraphNode
	var key string
	err := row.Scan(&key, &n.Type, &n.Attributes, &n.AttributeSources, &n.Confidence, &n.Provenance, &n.UpdatedAt, &n.Version)
	n.Key = common.IdentityKey(key)
	return n, err
}

func scanEdge(row pgxv5.Row) (common.GraphEdge, error) {
	var e common.GraphEdge
	var src, dst string
	err := row.Scan(&src, &dst, &e.Type, &e.Attributes, &e.AttributeSources, &e.Confidence, &e.Provenance, &e.UpdatedAt, &e.Version)
	e.SourceKey = common.IdentityKey(src)
	e.TargetKey = common.IdentityKey(dst)
	return e, err
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
	rows, err := s.conn.Query(ctx, `SELECT `+nodeColumns+` FROM graph_nodes WHERE key = ANY($1)`, keyStrings(keys))
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out[n.Key] = n
	}
	return out, rows.Err()
}

func (s *GraphStore) Edges(ctx context.Context, ids []string) (map[string]common.GraphEdge, error) {
	out := make(map[string]common.GraphEdge, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.conn.Query(ctx, `SELECT `+edgeColumns+` FROM graph_edges WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out[e.EdgeID()] = e
	}
	return out, rows.Err()
}

func (s *GraphStore) Commit(ctx context.Context, batch store.GraphBatch) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, n := range batch.Nodes {
		if err := commitNode(ctx, tx, n); err != nil {
			return err
		}
	}
	for _, e := range batch.Edges {
		if err := commitEdge(ctx, tx, e); err != nil {
			return err
		}
	}
	return conflict(tx.Commit(ctx))
}

func commitNode(ctx context.Context, tx pgxv5.Tx, n common.GraphNode) error {
	var sql string
	if n.Version == 0 {
		sql = `INSERT INTO graph_nodes (` + nodeColumns + `, search)
			VALUES ($1, $2, COALESCE($3, '{}'::jsonb), COALESCE($4, '{}'::jsonb), $5, COALESCE($6, '{}'::text[]), $7, $8::bigint + 1, $9)
			ON CONFLICT (key) DO NOTHING`
	} else {
		sql = `UPDATE graph_nodes SET type = $2, attributes = COALESCE($3, '{}'::jsonb),
			attribute_sources = COALESCE($4, '{}'::jsonb), confidence = $5,
			provenance = COALESCE($6, '{}'::text[]), updated_at = $7, version = version + 1, search = $9
			WHERE key = $1 AND version = $8`
	}
	tag, err := tx.Exec(ctx, sql,
		string(n.Key), n.Type, n.Attributes, n.AttributeSources, n.Confidence,
		n.Provenance, n.UpdatedAt, n.Version, util.SanitizePostgresText(store.SearchText(n)),
	)
	if err != nil {
		return conflict(fmt.Errorf("write node %s: %w", n.Key, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: node %s changed since version %d", store.ErrUpsertConflict, n.Key, n.Version)
	}
	return nil
}

func commitEdge(ctx context.Context, tx pgxv5.Tx, e common.GraphEdge) error {
	var sql string
	if e.Version == 0 {
		sql = `INSERT INTO graph_edges (id, ` + edgeColumns + `)
			VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), COALESCE($6, '{}'::jsonb), $7,
				COALESCE($8, '{}'::text[]), $9, $10::bigint + 1)
			ON CONFLICT (id) DO NOTHING`
	} else {
		sql = `UPDATE graph_edges SET attributes = COALESCE($5, '{}'::jsonb),
			attribute_sources = COALESCE($6, '{}'::jsonb), confidence = $7,
			provenance = COALESCE($8, '{}'::text[]), updated_at = $9, version = version + 1
			WHERE id = $1 AND source_key = $2 AND target_key = $3 AND type = $4 AND version = $10`
	}
	tag, err := tx.Exec(ctx, sql,
		e.EdgeID(), string(e.SourceKey), string(e.TargetKey), e.Type, e.Attributes,
		e.AttributeSources, e.Confidence, e.Provenance, e.UpdatedAt, e.Version,
	)
	if err != nil {
		return conflict(fmt.Errorf("write edge %s: %w", e.EdgeID(), err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: edge %s changed since version %d", store.ErrUpsertConflict, e.EdgeID(), e.Version)
	}
	return nil
}

// likePatterns turns query terms into whole-word LIKE patterns against the
// padded search column.
func likePatterns(terms []string) []string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.Join(strings.Fields(strings.ToLower(t)), " ")
		if t == "" {
			continue
		}
		out = append(out, "% "+r.Replace(t)+" %")
	}
	return out
}

func (s *GraphStore) Query(ctx context.Context, q store.GraphQuery) ([]store.GraphFact, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+nodeColumns+` FROM graph_nodes WHERE key = ANY($1) OR search LIKE ANY($2) ORDER BY key`,
		keyStrings(q.Keys), likePatterns(q.Terms),
	)
	if err != nil {
		return nil, fmt.Errorf("query matched nodes: %w", err)
	}
	matched := make(map[common.IdentityKey]common.GraphNode)
	var order []common.IdentityKey
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		matched[n.Key] = n
		order = append(order, n.Key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	rows, err = s.conn.Query(ctx,
		`SELECT `+edgeColumns+` FROM graph_edges
		WHERE (source_key = ANY($1) OR target_key = ANY($1))
		AND (cardinality($2::text[]) = 0 OR type = ANY($2))
		ORDER BY id`,
		keyStrings(order), q.RelTypes,
	)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	var edges []common.GraphEdge
	touched := make(map[common.IdentityKey]bool)
	var endpoints []common.IdentityKey
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
		for _, k := range []common.IdentityKey{e.SourceKey, e.TargetKey} {
			if !touched[k] {
				touched[k] = true
				endpoints = append(endpoints, k)
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes, err := s.Nodes(ctx, endpoints)
	if err != nil {
		return nil, err
	}

	facts := make([]store.GraphFact, 0, len(edges))
	for i := range edges {
		e := edges[i]
		m := 0
		if _, ok := matched[e.SourceKey]; ok {
			m++
		}
		if _, ok := matched[e.TargetKey]; ok {
			m++
		}
		facts = append(facts, store.GraphFact{Source: nodes[e.SourceKey], Edge: &e, Target: nodes[e.TargetKey], Matched: m})
	}
	if len(q.RelTypes) == 0 {
		for _, k := range order {
			if !touched[k] {
				facts = append(facts, store.GraphFact{Source: matched[k], Matched: 1})
			}
		}
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
	var nodes, edges int64
	err := s.conn.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM graph_nodes), (SELECT count(*) FROM graph_edges)`,
	).Scan(&nodes, &edges)
	if err != nil {
		return 0, 0, fmt.Errorf("count graph: %w", err)
	}
	return nodes, edges, nil
}
