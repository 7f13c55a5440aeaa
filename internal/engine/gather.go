package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/metrics"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

// fetchPlan is one source read within a scatter-gather round.
type fetchPlan struct {
	desc  *source.Descriptor
	since time.Time
	limit int
}

// gathered holds the normalized items of one source, or the read error.
type gathered struct {
	desc    *source.Descriptor
	items   []activity.Item
	fetched int
	dropped int
	err     error
}

// gatherer runs bounded, per-source isolated reads in parallel.
type gatherer struct {
	store       store.Store
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
}

// gather fetches and normalizes every plan. A failing source yields an
// error in its slot; it never fails the round.
func (g *gatherer) gather(ctx context.Context, plans []fetchPlan) []gathered {
	out := make([]gathered, len(plans))
	eg, ctx := errgroup.WithContext(ctx)
	if g.concurrency > 0 {
		eg.SetLimit(g.concurrency)
	}
	for i, p := range plans {
		eg.Go(func() error {
			out[i] = g.fetch(ctx, p)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (g *gatherer) fetch(ctx context.Context, p fetchPlan) gathered {
	res := gathered{desc: p.desc}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	rows, err := g.store.Fetch(ctx, store.QueryFor(p.desc, p.since, p.limit))
	if err != nil {
		metrics.SourceFetchErrors.WithLabelValues(p.desc.ID).Inc()
		g.logger.Warn("source fetch failed", "source", p.desc.ID, "err", err)
		res.err = err
		return res
	}
	res.fetched = len(rows)
	res.items = make([]activity.Item, 0, len(rows))
	for _, r := range rows {
		it, err := source.Normalize(p.desc, r)
		if err != nil {
			res.dropped++
			metrics.RowsDropped.WithLabelValues(p.desc.ID, dropReason(err)).Inc()
			g.logger.Debug("row dropped", "source", p.desc.ID, "row", r.String("id"), "err", err)
			continue
		}
		res.items = append(res.items, it)
	}
	return res
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, source.ErrMissingActor):
		return "missing_actor"
	case errors.Is(err, source.ErrBadTimestamp):
		return "bad_timestamp"
	case errors.Is(err, source.ErrMissingID):
		return "missing_id"
	case errors.Is(err, source.ErrFiltered):
		return "filtered"
	}
	return "other"
}
