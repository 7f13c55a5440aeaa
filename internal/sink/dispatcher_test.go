package sink_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/sink"
)

// recorder is an in-memory sink.
type recorder struct {
	name string
	fail bool

	mu  sync.Mutex
	got []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Publish(_ context.Context, it activity.Item) error {
	if r.fail {
		return errors.New("broker down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, it.ID)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

// gate blocks every publish until open is closed.
type gate struct {
	recorder
	open chan struct{}
}

func (g *gate) Publish(ctx context.Context, it activity.Item) error {
	<-g.open
	return g.recorder.Publish(ctx, it)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := sink.NewRegistry()
	reg.Register(&recorder{name: "redis"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate sink")
		}
	}()
	reg.Register(&recorder{name: "redis"})
}

func TestRegistry_OrderedByName(t *testing.T) {
	reg := sink.NewRegistry()
	reg.Register(&recorder{name: "redis"})
	reg.Register(&recorder{name: "kafka"})
	if got := fmt.Sprint(reg.Names()); got != "[kafka redis]" {
		t.Errorf("names = %s", got)
	}
	all := reg.All()
	if len(all) != 2 || all[0].Name() != "kafka" || all[1].Name() != "redis" {
		t.Errorf("all = %v", all)
	}
	if err := reg.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDispatcher_PublishesToEverySink(t *testing.T) {
	ok := &recorder{name: "ok"}
	broken := &recorder{name: "broken", fail: true}
	reg := sink.NewRegistry()
	reg.Register(ok)
	reg.Register(broken)

	d := sink.NewDispatcher(context.Background(), reg, 2, 16, nil)
	for i := range 5 {
		if !d.Submit(activity.Item{ID: fmt.Sprintf("tips:%d", i)}) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	d.Drain()

	if got := len(ok.ids()); got != 5 {
		t.Errorf("healthy sink got %d items, want 5 despite the failing one", got)
	}
	if d.Submit(activity.Item{ID: "late"}) {
		t.Error("submit accepted after drain")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	g := &gate{recorder: recorder{name: "slow"}, open: make(chan struct{})}
	reg := sink.NewRegistry()
	reg.Register(g)
	d := sink.NewDispatcher(context.Background(), reg, 1, 2, nil)

	accepted := 0
	for i := range 10 {
		if d.Submit(activity.Item{ID: fmt.Sprint(i)}) {
			accepted++
		}
	}
	// One item is held by the worker, two wait in the queue.
	if accepted > 3 {
		t.Errorf("accepted %d items with one worker and queue depth 2", accepted)
	}
	if u := d.QueueUtilization(); u <= 0 || u > 1 {
		t.Errorf("utilization = %v", u)
	}
	close(g.open)
	d.Drain()
	if got := len(g.ids()); got != accepted {
		t.Errorf("published %d, accepted %d", got, accepted)
	}
}
