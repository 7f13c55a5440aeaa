package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/engine"
	"github.com/gyaneshwarpardhi/livefeed/internal/feed"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// failingStore fails every read of the listed entities.
type failingStore struct {
	store.Store
	entities map[string]bool
}

func (f failingStore) Fetch(ctx context.Context, q store.Query) ([]source.Row, error) {
	if f.entities[q.Entity] {
		return nil, fmt.Errorf("%s: connection reset", q.Entity)
	}
	return f.Store.Fetch(ctx, q)
}

// overlapStore ignores the watermark so every tick re-reads the same rows.
type overlapStore struct{ store.Store }

func (o overlapStore) Fetch(ctx context.Context, q store.Query) ([]source.Row, error) {
	q.Since = time.Time{}
	return o.Store.Fetch(ctx, q)
}

func sources(t *testing.T, ids ...string) []*source.Descriptor {
	t.Helper()
	cat, err := source.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := make([]*source.Descriptor, 0, len(ids))
	for _, id := range ids {
		d, ok := cat.Get(id)
		if !ok {
			t.Fatalf("unknown source %q", id)
		}
		out = append(out, d)
	}
	return out
}

func memoryWithProfiles() *store.Memory {
	m := store.NewMemory()
	m.PutProfile("u1", map[string]any{"id": "u1", "display_name": "Ana"})
	m.PutProfile("u2", map[string]any{"id": "u2", "username": "ben"})
	m.PutProfile("u3", map[string]any{"id": "u3", "wallet_address": "0x1234567890abcdef"})
	return m
}

func swipe(id string, at time.Time) source.Row {
	return source.Row{"id": id, "created_at": at, "direction": "right", "swiper_id": "u1", "swiped_id": "u2", "token_amount": 10}
}

func newPoller(t *testing.T, st store.Store, log *feed.Log, clk *clock, ids ...string) *engine.Poller {
	t.Helper()
	return engine.NewPoller(st, log, engine.NewSeenIndex(256, time.Hour), sources(t, ids...),
		engine.PollerConfig{Lookback: time.Hour, FetchTimeout: time.Second, Concurrency: 4}, quiet, clk.Now)
}

func rowIDs(items []activity.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPoller_NewRightSwipeEndToEnd(t *testing.T) {
	m := memoryWithProfiles()
	clk := &clock{now: t0.Add(time.Hour)}
	log := feed.NewLog(10)
	p := newPoller(t, m, log, clk, "swipes")

	if wm := p.Watermarks()["swipes"]; !wm.Equal(t0) {
		t.Fatalf("initial watermark = %v, want %v", wm, t0)
	}

	m.Insert("swipes", source.Row{
		"id": "s1", "created_at": t0.Add(5 * time.Second), "direction": "right",
		"swiper_id": "u1", "swiped_id": "u2", "token_amount": 2500,
	})
	res, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Admitted != 1 {
		t.Fatalf("admitted = %d, want 1", res.Admitted)
	}

	got := log.Snapshot()
	if len(got) != 1 {
		t.Fatalf("buffer = %v, want one item", rowIDs(got))
	}
	it := got[0]
	if it.Kind != activity.KindSwipe || it.Actor.DisplayName != "Ana" || it.Amount != 2500 {
		t.Errorf("item = %+v", it)
	}
	if it.Target == nil || it.Target.DisplayName != "ben" {
		t.Errorf("target = %+v", it.Target)
	}
	if wm := p.Watermarks()["swipes"]; wm.Before(t0.Add(5 * time.Second)) {
		t.Errorf("watermark %v did not advance past the admitted row", wm)
	}
}

func TestPoller_WatermarkAdvancesWithoutRows(t *testing.T) {
	clk := &clock{now: t0}
	p := newPoller(t, memoryWithProfiles(), feed.NewLog(10), clk, "tips", "swipes")

	clk.Set(t0.Add(45 * time.Second))
	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	for id, wm := range p.Watermarks() {
		if !wm.Equal(t0.Add(45 * time.Second)) {
			t.Errorf("%s watermark = %v, want tick time", id, wm)
		}
	}
}

func TestPoller_Dedup(t *testing.T) {
	m := memoryWithProfiles()
	m.Insert("swipes", swipe("a", t0.Add(time.Second)), swipe("b", t0.Add(2*time.Second)))
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(10)
	p := newPoller(t, overlapStore{m}, log, clk, "swipes")

	first, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	m.Insert("swipes", swipe("c", t0.Add(3*time.Second)))
	clk.Set(t0.Add(2 * time.Minute))
	second, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if first.Admitted != 2 || second.Admitted != 1 || second.Duplicates != 2 {
		t.Errorf("first=%+v second=%+v", first, second)
	}
	seen := make(map[string]bool)
	for _, id := range rowIDs(log.Snapshot()) {
		if seen[id] {
			t.Fatalf("duplicate %s in buffer", id)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Errorf("buffer holds %d items, want 3", len(seen))
	}
}

func TestPoller_BoundedAndAscending(t *testing.T) {
	m := memoryWithProfiles()
	// Inserted out of order; the tick must append oldest first.
	m.Insert("swipes",
		swipe("4", t0.Add(4*time.Second)),
		swipe("1", t0.Add(1*time.Second)),
		swipe("5", t0.Add(5*time.Second)),
		swipe("2", t0.Add(2*time.Second)),
		swipe("3", t0.Add(3*time.Second)),
	)
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(3)
	p := newPoller(t, m, log, clk, "swipes")

	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{"swipes:3", "swipes:4", "swipes:5"}
	got := rowIDs(log.Snapshot())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("buffer = %v, want %v", got, want)
	}
}

func TestPoller_EqualTimestampsOrderedBySourcePriority(t *testing.T) {
	m := memoryWithProfiles()
	at := t0.Add(time.Second)
	m.Insert("swipes", swipe("x", at))
	m.Insert("tips", source.Row{"id": "y", "created_at": at, "sender_id": "u1", "recipient_id": "u2", "amount": 1})
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(10)
	p := newPoller(t, m, log, clk, "swipes", "tips")

	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := rowIDs(log.Snapshot())
	if fmt.Sprint(got) != "[tips:y swipes:x]" {
		t.Errorf("buffer = %v, want tips (priority 0) first", got)
	}
}

func TestPoller_SourceFailureIsIsolated(t *testing.T) {
	m := memoryWithProfiles()
	m.Insert("matches", source.Row{"id": "m1", "created_at": t0.Add(time.Second), "user_a_id": "u1", "user_b_id": "u2"})
	m.Insert("pixel_placements", source.Row{"id": "p1", "created_at": t0.Add(time.Second), "painter_id": "u3"})
	st := failingStore{Store: m, entities: map[string]bool{"pixel_placements": true}}
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(10)
	p := newPoller(t, st, log, clk, "matches", "pixels")

	res, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if fmt.Sprint(res.Failed) != "[pixels]" {
		t.Errorf("failed = %v, want [pixels]", res.Failed)
	}
	if got := rowIDs(log.Snapshot()); fmt.Sprint(got) != "[matches:m1]" {
		t.Errorf("buffer = %v, want [matches:m1]", got)
	}
}

func TestPoller_DropsMalformedRows(t *testing.T) {
	m := memoryWithProfiles()
	m.Insert("swipes",
		swipe("ok", t0.Add(time.Second)),
		source.Row{"id": "ghost", "created_at": t0.Add(2 * time.Second), "direction": "right", "swiper_id": "u9", "swiped_id": "u2"},
	)
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(10)
	p := newPoller(t, m, log, clk, "swipes")

	res, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Fetched != 2 || res.Dropped != 1 || res.Admitted != 1 {
		t.Errorf("result = %+v", res)
	}
}

// blockingStore parks reads until release is closed.
type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (b blockingStore) Fetch(ctx context.Context, q store.Query) ([]source.Row, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Store.Fetch(ctx, q)
}

func TestPoller_DiscardsResultsAfterClose(t *testing.T) {
	m := memoryWithProfiles()
	m.Insert("swipes", swipe("late", t0.Add(time.Second)))
	st := blockingStore{Store: m, entered: make(chan struct{}, 1), release: make(chan struct{})}
	clk := &clock{now: t0.Add(time.Minute)}
	log := feed.NewLog(10)
	p := newPoller(t, st, log, clk, "swipes")

	done := make(chan error, 1)
	go func() {
		_, err := p.Tick(context.Background())
		done <- err
	}()
	<-st.entered
	p.Close()
	close(st.release)

	if err := <-done; !errors.Is(err, engine.ErrClosed) {
		t.Fatalf("Tick err = %v, want ErrClosed", err)
	}
	if log.Len() != 0 {
		t.Errorf("closed poller appended %d items", log.Len())
	}
	if _, err := p.Tick(context.Background()); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Tick after Close err = %v", err)
	}
}

func TestPoller_SetSourcesKeepsWatermarks(t *testing.T) {
	clk := &clock{now: t0}
	p := newPoller(t, memoryWithProfiles(), feed.NewLog(10), clk, "swipes")
	clk.Set(t0.Add(time.Minute))
	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	p.SetSources(sources(t, "swipes", "tips"))
	if wm := p.Watermarks()["swipes"]; !wm.Equal(t0.Add(time.Minute)) {
		t.Errorf("swipes watermark reset to %v", wm)
	}
	if wm := p.Watermarks()["tips"]; !wm.Equal(t0.Add(time.Minute - time.Hour)) {
		t.Errorf("tips watermark = %v, want now − lookback", wm)
	}
}
