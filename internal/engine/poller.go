package engine

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/feed"
	"github.com/gyaneshwarpardhi/livefeed/internal/metrics"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

// ErrClosed is returned once the poller or engine has been shut down.
var ErrClosed = errors.New("engine: closed")

// Phase is where the poller is within a tick.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseMerging  Phase = "merging"
)

// TickResult summarises one poll tick.
type TickResult struct {
	At         time.Time `json:"at"`
	Fetched    int       `json:"fetched"`
	Dropped    int       `json:"dropped"`
	Duplicates int       `json:"duplicates"`
	Admitted   int       `json:"admitted"`
	Failed     []string  `json:"failed,omitempty"`
}

// PollerConfig carries the poller's tunables.
type PollerConfig struct {
	Lookback     time.Duration
	FetchTimeout time.Duration
	Concurrency  int
}

// Poller incrementally reads new rows of each source past its watermark and
// admits unseen items to the log.
type Poller struct {
	gatherer
	log      *feed.Log
	seen     *SeenIndex
	now      func() time.Time
	lookback time.Duration

	// tickMu serialises ticks so appends land in tick order; mu guards the
	// fields below and is never held while the log runs its callbacks.
	tickMu     sync.Mutex
	mu         sync.Mutex
	sources    []*source.Descriptor
	watermarks map[string]time.Time
	phase      Phase
	paused     bool
	closed     bool
}

// NewPoller creates a poller over sources. Watermarks start at now − lookback.
func NewPoller(st store.Store, log *feed.Log, seen *SeenIndex, sources []*source.Descriptor, conf PollerConfig, logger *slog.Logger, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		gatherer: gatherer{
			store:       st,
			logger:      logger,
			timeout:     conf.FetchTimeout,
			concurrency: conf.Concurrency,
		},
		log:        log,
		seen:       seen,
		now:        now,
		lookback:   conf.Lookback,
		watermarks: make(map[string]time.Time),
		phase:      PhaseIdle,
	}
	p.SetSources(sources)
	return p
}

// SetSources replaces the polled sources. Known sources keep their
// watermark; new ones start at now − lookback.
func (p *Poller) SetSources(sources []*source.Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.now().Add(-p.lookback)
	next := make(map[string]time.Time, len(sources))
	for _, d := range sources {
		if wm, ok := p.watermarks[d.ID]; ok {
			next[d.ID] = wm
		} else {
			next[d.ID] = start
		}
	}
	p.sources = slices.Clone(sources)
	p.watermarks = next
}

// Configure updates the fetch tunables for subsequent ticks.
func (p *Poller) Configure(conf PollerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookback = conf.Lookback
	p.timeout = conf.FetchTimeout
	p.concurrency = conf.Concurrency
}

// SetPaused stops ticks from fetching or applying results. A tick already
// fetching when the poller pauses discards what it gathered.
func (p *Poller) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}

// Watermarks returns a copy of every source's watermark.
func (p *Poller) Watermarks() map[string]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Time, len(p.watermarks))
	for k, v := range p.watermarks {
		out[k] = v
	}
	return out
}

// Phase reports what the poller is doing.
func (p *Poller) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Tick runs one poll: fetch every source past its watermark, merge oldest
// first, admit unseen items and advance all watermarks to the tick time.
// Log callbacks run after the poller's state lock is released, so they may
// read poller and engine state but must not start another tick.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.mu.Lock()
	if err := p.gate(); err != nil {
		p.mu.Unlock()
		return TickResult{}, err
	}
	at := p.now()
	plans := make([]fetchPlan, len(p.sources))
	for i, d := range p.sources {
		plans[i] = fetchPlan{desc: d, since: p.watermarks[d.ID], limit: d.PollLimit}
	}
	g := p.gatherer
	p.phase = PhaseFetching
	p.mu.Unlock()

	results := g.gather(ctx, plans)

	p.mu.Lock()
	if err := p.gate(); err != nil {
		p.phase = PhaseIdle
		p.mu.Unlock()
		return TickResult{}, err
	}
	p.phase = PhaseMerging

	res := TickResult{At: at}
	var merged []activity.Item
	for _, r := range results {
		if r.err != nil {
			res.Failed = append(res.Failed, r.desc.ID)
			continue
		}
		res.Fetched += r.fetched
		res.Dropped += r.dropped
		merged = append(merged, r.items...)
	}
	slices.SortStableFunc(merged, p.ascending)

	admitted := make([]activity.Item, 0, len(merged))
	for _, it := range merged {
		if !p.seen.Admit(it.ID) {
			res.Duplicates++
			metrics.DuplicatesSkipped.Inc()
			continue
		}
		admitted = append(admitted, it)
		metrics.ItemsAdmitted.WithLabelValues(it.Source).Inc()
	}
	res.Admitted = len(admitted)
	for _, d := range p.sources {
		p.watermarks[d.ID] = at
	}
	p.mu.Unlock()

	p.log.Append(admitted...)

	p.mu.Lock()
	p.phase = PhaseIdle
	p.mu.Unlock()

	metrics.SeenIndexSize.Set(float64(p.seen.Len()))
	metrics.BufferLength.Set(float64(p.log.Len()))
	return res, nil
}

// gate reports why a tick may not run or apply. Callers hold p.mu.
func (p *Poller) gate() error {
	if p.closed {
		return ErrClosed
	}
	if p.paused {
		return ErrDisabled
	}
	return nil
}

// Close stops the poller. A tick in flight discards its results.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// ascending orders by timestamp, then source priority, then row id.
func (p *Poller) ascending(a, b activity.Item) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(priorityOf(p.sources, a.Source), priorityOf(p.sources, b.Source)); c != 0 {
		return c
	}
	return cmp.Compare(a.RowID, b.RowID)
}

func priorityOf(sources []*source.Descriptor, id string) int {
	for _, d := range sources {
		if d.ID == id {
			return d.Priority
		}
	}
	return len(sources)
}
