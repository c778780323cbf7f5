// Package graph merges validated, identity-keyed entities and
// relationships into the knowledge graph. It guarantees one node per
// identity key and one edge per (source, target, type).
package graph

import (
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/keylock"
	"github.com/OFFIS-RIT/hazgraph/pkg/store"
)

// Engine is safe for concurrent use. Writers touching the same keys are
// serialized through the Locker; the store's version check catches writers
// on other processes that share no Locker.
//
// An Engine should be created using NewEngine.
type Engine struct {
	store        store.GraphStore
	locker       keylock.Locker
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time
	onConflict   func(recordID string, err error)
}

// NewEngineParams configures an Engine.
//
// Locker defaults to an in-process keylock.Local. MaxRetries bounds the
// number of commit attempts on store.ErrUpsertConflict.
type NewEngineParams struct {
	Store        store.GraphStore
	Locker       keylock.Locker
	MaxRetries   int
	RetryBackoff time.Duration
}

type EngineOption func(*Engine)

// WithConflictHook is called for every conflicting attempt before the retry.
func WithConflictHook(fn func(recordID string, err error)) EngineOption {
	return func(e *Engine) {
		e.onConflict = fn
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(params NewEngineParams, opts ...EngineOption) *Engine {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	backoff := params.RetryBackoff
	if backoff <= 0 {
		backoff = 20 * time.Millisecond
	}
	locker := params.Locker
	if locker == nil {
		locker = keylock.NewLocal()
	}
	e := &Engine{
		store:        params.Store,
		locker:       locker,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}
