// Package keylock serializes writers that touch the same identity keys.
// Every implementation acquires keys in sorted order, so two writers with
// overlapping key sets cannot deadlock.
package keylock

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"time"
)

var (
	ErrBusy = errors.New("key lock busy")
	ErrLost = errors.New("key lock lost")
)

type Locker interface {
	// LockKeys blocks until every key is held or ctx is done. The returned
	// function releases all of them.
	LockKeys(ctx context.Context, keys []string) (func(), error)
}

// SortedUnique returns keys sorted with duplicates and blanks removed.
func SortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// lockEach acquires keys one by one and releases the held prefix when a
// later key fails.
func lockEach(ctx context.Context, keys []string, lock func(ctx context.Context, key string) (func(), error)) (func(), error) {
	keys = SortedUnique(keys)
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, k := range keys {
		release, err := lock(ctx, k)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
