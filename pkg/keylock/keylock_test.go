package keylock

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"b", "a", "", "b", "c"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %v", got)
	}
}

func TestLocalExcludes(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.LockKeys(ctx, []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.LockKeys(tctx, []string{"y"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second lock err = %v", err)
	}

	// Disjoint keys are not blocked.
	r2, err := l.LockKeys(ctx, []string{"z"})
	if err != nil {
		t.Fatal(err)
	}
	r2()
	release()
	release()

	if n := l.held(); n != 0 {
		t.Fatalf("held = %d after release", n)
	}
}

func TestLocalOverlappingSetsDoNotDeadlock(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	counter := 0
	sets := [][]string{{"a", "b"}, {"b", "a"}, {"c", "a"}, {"b", "c"}}
	for i := 0; i < 40; i++ {
		keys := sets[i%len(sets)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.LockKeys(ctx, keys)
			if err != nil {
				t.Error(err)
				return
			}
			counter++
			release()
		}()
	}
	wg.Wait()
	if counter != 40 {
		t.Fatalf("counter = %d", counter)
	}
}
