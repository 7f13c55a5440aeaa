package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/engine"
)

func list(n int) []activity.Item {
	out := make([]activity.Item, n)
	for i := range out {
		out[i] = activity.Item{ID: fmt.Sprint(i)}
	}
	return out
}

func TestRotator_Wraparound(t *testing.T) {
	for _, n := range []int{1, 2, 5, 30} {
		r := engine.NewRotator(time.Second)
		r.Replace(list(n))
		r.Advance()
		start := r.Cursor()
		for range n {
			r.Advance()
		}
		if r.Cursor() != start {
			t.Errorf("n=%d: cursor %d after %d advances, want %d", n, r.Cursor(), n, start)
		}
	}
}

func TestRotator_ReplaceClamps(t *testing.T) {
	cases := []struct {
		name      string
		before    int
		advances  int
		after     int
		want      int
		wantEmpty bool
	}{
		{"shorter list", 10, 7, 3, 2, false},
		{"longer list keeps cursor", 3, 2, 10, 2, false},
		{"empty list", 5, 4, 0, 0, true},
		{"same length", 4, 3, 4, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := engine.NewRotator(time.Second)
			r.Replace(list(tc.before))
			for range tc.advances {
				r.Advance()
			}
			r.Replace(list(tc.after))
			if r.Cursor() != tc.want {
				t.Errorf("cursor = %d, want %d", r.Cursor(), tc.want)
			}
			_, ok := r.Current()
			if ok == tc.wantEmpty {
				t.Errorf("Current ok = %v with %d items", ok, tc.after)
			}
		})
	}
}

func TestRotator_EmptyIsNothingToShow(t *testing.T) {
	r := engine.NewRotator(time.Second)
	if _, ok := r.Advance(); ok {
		t.Error("Advance on empty list reported an item")
	}
	if _, ok := r.Current(); ok {
		t.Error("Current on empty list reported an item")
	}
}

func TestRotator_RunAdvancesUntilCancelled(t *testing.T) {
	r := engine.NewRotator(5 * time.Millisecond)
	r.Replace(list(1000))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.Cursor() < 2 {
		select {
		case <-deadline:
			t.Fatal("rotator did not advance")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	r.SetPaused(true)
	frozen := r.Cursor()
	ctx, cancel = context.WithCancel(context.Background())
	go r.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	if r.Cursor() != frozen {
		t.Errorf("paused rotator moved from %d to %d", frozen, r.Cursor())
	}
}
