package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

// ErrAllSourcesFailed is returned when no source of a refresh could be read.
var ErrAllSourcesFailed = errors.New("engine: every snapshot source failed")

// Aggregator rebuilds the top-K snapshot from scratch on every refresh.
type Aggregator struct {
	mu      sync.Mutex
	g       gatherer
	sources []*source.Descriptor
	topK    int
}

// NewAggregator creates an aggregator over sources.
func NewAggregator(st store.Store, sources []*source.Descriptor, topK int, timeout time.Duration, concurrency int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		g:       gatherer{store: st, logger: logger, timeout: timeout, concurrency: concurrency},
		sources: slices.Clone(sources),
		topK:    topK,
	}
}

// Configure replaces sources and limits for subsequent refreshes.
func (a *Aggregator) Configure(sources []*source.Descriptor, topK int, timeout time.Duration, concurrency int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources = slices.Clone(sources)
	a.topK = topK
	a.g.timeout = timeout
	a.g.concurrency = concurrency
}

// Refresh reads every source's newest rows, merges them newest first and
// truncates to topK. Sources that fail contribute nothing; if all of them
// fail the refresh fails so callers keep their previous snapshot.
func (a *Aggregator) Refresh(ctx context.Context) ([]activity.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	a.mu.Lock()
	g, sources, topK := a.g, a.sources, a.topK
	a.mu.Unlock()

	plans := make([]fetchPlan, len(sources))
	for i, d := range sources {
		plans[i] = fetchPlan{desc: d, limit: d.SnapshotLimit}
	}
	results := g.gather(ctx, plans)

	var (
		merged []activity.Item
		failed int
	)
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		merged = append(merged, r.items...)
	}
	if len(sources) > 0 && failed == len(sources) {
		return nil, ErrAllSourcesFailed
	}

	slices.SortFunc(merged, descending(sources))
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// descending orders newest first; equal timestamps fall back to source
// priority, then composite id.
func descending(sources []*source.Descriptor) func(a, b activity.Item) int {
	prio := make(map[string]int, len(sources))
	for _, d := range sources {
		prio[d.ID] = d.Priority
	}
	return func(a, b activity.Item) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(prio[a.Source], prio[b.Source]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
}
