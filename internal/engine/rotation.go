package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
)

// Rotator cycles a display cursor over a list on its own timer.
type Rotator struct {
	mu       sync.RWMutex
	items    []activity.Item
	cursor   int
	interval time.Duration
	paused   bool
	reset    chan struct{}
}

// NewRotator creates an empty rotator advancing every interval.
func NewRotator(interval time.Duration) *Rotator {
	return &Rotator{interval: interval, reset: make(chan struct{}, 1)}
}

// Replace swaps the underlying list. The cursor is kept but clamped to the
// new list's last index, or 0 when it is empty.
func (r *Rotator) Replace(items []activity.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = slices.Clone(items)
	r.cursor = min(r.cursor, max(len(r.items)-1, 0))
}

// Advance moves the cursor to the next item, wrapping at the end.
func (r *Rotator) Advance() (activity.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return activity.Item{}, false
	}
	r.cursor = (r.cursor + 1) % len(r.items)
	return r.items[r.cursor], true
}

// Current returns the item under the cursor.
func (r *Rotator) Current() (activity.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		return activity.Item{}, false
	}
	return r.items[r.cursor], true
}

// Cursor returns the cursor position.
func (r *Rotator) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// Items returns a copy of the displayed list.
func (r *Rotator) Items() []activity.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// SetInterval changes the rotation period of a running loop.
func (r *Rotator) SetInterval(d time.Duration) {
	r.mu.Lock()
	changed := d != r.interval
	r.interval = d
	r.mu.Unlock()
	if changed {
		select {
		case r.reset <- struct{}{}:
		default:
		}
	}
}

// SetPaused stops or resumes cursor movement from Run.
func (r *Rotator) SetPaused(p bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = p
}

// Run advances the cursor every interval until ctx is done.
func (r *Rotator) Run(ctx context.Context) {
	t := time.NewTicker(r.period())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.reset:
			t.Reset(r.period())
		case <-t.C:
			r.mu.RLock()
			paused := r.paused
			r.mu.RUnlock()
			if !paused {
				r.Advance()
			}
		}
	}
}

func (r *Rotator) period() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.interval <= 0 {
		return time.Second
	}
	return r.interval
}
