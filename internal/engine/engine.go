package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/config"
	"github.com/gyaneshwarpardhi/livefeed/internal/feed"
	"github.com/gyaneshwarpardhi/livefeed/internal/metrics"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

// ErrDisabled is returned by Poll and Refresh while the engine is disabled.
var ErrDisabled = errors.New("engine: disabled")

// Options are the engine's injectable collaborators. Zero values select
// slog.Default, time.Now and a Rand seeded from ShuffleSeed.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	Rand   Rand
}

// Status is a point-in-time view of the engine.
type Status struct {
	Enabled      bool                 `json:"enabled"`
	Phase        Phase                `json:"phase"`
	Sources      int                  `json:"sources"`
	Watermarks   map[string]time.Time `json:"watermarks"`
	BufferLen    int                  `json:"buffer_len"`
	BufferCap    int                  `json:"buffer_cap"`
	SnapshotLen  int                  `json:"snapshot_len"`
	SeenIDs      int                  `json:"seen_ids"`
	Subscribers  int                  `json:"subscribers"`
	LastPoll     *TickResult          `json:"last_poll,omitempty"`
	LastRefresh  time.Time            `json:"last_refresh"`
	PollError    string               `json:"poll_error,omitempty"`
	RefreshError string               `json:"refresh_error,omitempty"`
	TickerCursor int                  `json:"ticker_cursor"`
	BannerCursor int                  `json:"banner_cursor"`
}

// Engine drives the incremental poller and the snapshot aggregator on their
// own timers and exposes the results to readers.
type Engine struct {
	conf    atomic.Pointer[config.EngineConf]
	catalog atomic.Pointer[source.Catalog]
	logger  *slog.Logger
	rng     Rand

	log    *feed.Log
	seen   *SeenIndex
	poller *Poller
	agg    *Aggregator
	ticker *Rotator
	banner *Rotator

	mu          sync.RWMutex
	snapshot    []activity.Item // newest first, before shuffling
	shuffled    []activity.Item
	lastPoll    *TickResult
	lastRefresh time.Time
	pollErr     error
	refreshErr  error
	closed      bool
	rngMu       sync.Mutex

	pollReset    chan struct{}
	refreshReset chan struct{}
	runMu        sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New wires an engine over st using the sources of cat.
func New(st store.Store, cat *source.Catalog, conf config.EngineConf, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(conf.ShuffleSeed)
	}

	e := &Engine{
		logger:       opts.Logger,
		rng:          opts.Rand,
		log:          feed.NewLog(conf.MaxNotifications),
		ticker:       NewRotator(conf.TickerRotation()),
		banner:       NewRotator(conf.BannerRotation()),
		pollReset:    make(chan struct{}, 1),
		refreshReset: make(chan struct{}, 1),
	}
	e.conf.Store(&conf)
	e.catalog.Store(cat)

	incremental := cat.Incremental()
	e.seen = NewSeenIndex(seenSize(conf, len(incremental)), seenTTL(conf))
	e.poller = NewPoller(st, e.log, e.seen, incremental, pollerConfig(conf), opts.Logger, opts.Now)
	e.agg = NewAggregator(st, cat.Snapshot(), conf.TopK, conf.FetchTimeout(), conf.FetchConcurrency, opts.Logger)
	e.setPaused(!conf.IsEnabled())
	return e
}

func pollerConfig(conf config.EngineConf) PollerConfig {
	return PollerConfig{
		Lookback:     conf.InitialLookback(),
		FetchTimeout: conf.FetchTimeout(),
		Concurrency:  conf.FetchConcurrency,
	}
}

func seenSize(conf config.EngineConf, sources int) int {
	if conf.SeenIndexSize > 0 {
		return conf.SeenIndexSize
	}
	return SeenSize(conf.MaxNotifications, sources)
}

func seenTTL(conf config.EngineConf) time.Duration {
	if conf.SeenIndexTTLMs > 0 {
		return conf.SeenIndexTTL()
	}
	return SeenTTL(conf.PollInterval())
}

// Start launches the poll, refresh and rotation loops. Poll and refresh run
// once immediately.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(4)
	go func() {
		defer e.wg.Done()
		e.loop(ctx, "poll", func() time.Duration { return e.Config().PollInterval() }, e.pollReset, e.pollOnce)
	}()
	go func() {
		defer e.wg.Done()
		e.loop(ctx, "refresh", func() time.Duration { return e.Config().RefreshInterval() }, e.refreshReset, e.refreshOnce)
	}()
	go func() {
		defer e.wg.Done()
		e.ticker.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.banner.Run(ctx)
	}()
	e.logger.Info("engine started",
		"sources", len(e.catalog.Load().Snapshot()),
		"poll_interval", e.Config().PollInterval(),
		"refresh_interval", e.Config().RefreshInterval(),
		"enabled", e.Config().IsEnabled())
}

func (e *Engine) loop(ctx context.Context, name string, interval func() time.Duration, reset <-chan struct{}, run func(context.Context)) {
	run(ctx)
	t := time.NewTicker(interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("loop stopped", "loop", name)
			return
		case <-reset:
			t.Reset(interval())
		case <-t.C:
			run(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	if _, err := e.Poll(ctx); err != nil && !errors.Is(err, ErrDisabled) && !errors.Is(err, ErrClosed) {
		e.logger.Error("poll tick failed", "err", err)
	}
}

func (e *Engine) refreshOnce(ctx context.Context) {
	if _, err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrDisabled) && !errors.Is(err, ErrClosed) {
		e.logger.Error("snapshot refresh failed", "err", err)
	}
}

// Poll runs one incremental tick and points the ticker rotator at the
// updated buffer.
func (e *Engine) Poll(ctx context.Context) (TickResult, error) {
	if err := e.gate(); err != nil {
		return TickResult{}, err
	}
	start := time.Now()
	res, err := e.poller.Tick(ctx)
	metrics.PollTicks.Inc()
	metrics.TickDuration.WithLabelValues("poll").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		e.recordErr(&e.pollErr, err)
		return res, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return TickResult{}, ErrClosed
	}
	e.ticker.Replace(e.log.Snapshot())
	e.lastPoll = &res
	e.pollErr = nil
	e.mu.Unlock()
	if len(res.Failed) > 0 {
		e.logger.Warn("poll tick had failing sources", "failed", res.Failed)
	}
	e.logger.Debug("poll tick", "fetched", res.Fetched, "admitted", res.Admitted, "duplicates", res.Duplicates, "dropped", res.Dropped)
	return res, nil
}

// Refresh rebuilds the snapshot and reshuffles the banner. On failure the
// previous snapshot stays in place, as it does when the engine is disabled
// or shut down while the refresh is fetching.
func (e *Engine) Refresh(ctx context.Context) ([]activity.Item, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	start := time.Now()
	items, err := e.agg.Refresh(ctx)
	metrics.RefreshTicks.Inc()
	metrics.TickDuration.WithLabelValues("refresh").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		e.recordErr(&e.refreshErr, err)
		return nil, err
	}
	e.rngMu.Lock()
	shuffled := Shuffle(items, e.rng)
	e.rngMu.Unlock()

	e.mu.Lock()
	if err := e.gateLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.snapshot = items
	e.shuffled = shuffled
	e.lastRefresh = time.Now()
	e.refreshErr = nil
	e.banner.Replace(shuffled)
	e.mu.Unlock()

	metrics.SnapshotSize.Set(float64(len(items)))
	e.logger.Debug("snapshot refreshed", "items", len(items))
	return shuffled, nil
}

// Reconfigure applies new engine settings and a rebuilt catalog without
// dropping the buffer, watermarks of surviving sources or the seen index.
func (e *Engine) Reconfigure(conf config.EngineConf, cat *source.Catalog) {
	prev := e.Config()
	e.mu.Lock()
	e.conf.Store(&conf)
	e.mu.Unlock()
	e.catalog.Store(cat)

	incremental := cat.Incremental()
	e.poller.Configure(pollerConfig(conf))
	e.poller.SetSources(incremental)
	e.agg.Configure(cat.Snapshot(), conf.TopK, conf.FetchTimeout(), conf.FetchConcurrency)
	e.seen.Reset(seenSize(conf, len(incremental)), seenTTL(conf))
	e.log.Resize(conf.MaxNotifications)
	e.ticker.Replace(e.log.Snapshot())
	e.ticker.SetInterval(conf.TickerRotation())
	e.banner.SetInterval(conf.BannerRotation())
	e.setPaused(!conf.IsEnabled())

	if conf.PollIntervalMs != prev.PollIntervalMs {
		notify(e.pollReset)
	}
	if conf.RefreshIntervalMs != prev.RefreshIntervalMs {
		notify(e.refreshReset)
	}
	e.logger.Info("engine reconfigured",
		"enabled", conf.IsEnabled(),
		"incremental_sources", len(incremental),
		"max_notifications", conf.MaxNotifications,
		"top_k", conf.TopK)
}

// Apply rebuilds the catalog from cfg and reconfigures the engine with it.
func (e *Engine) Apply(cfg *config.FeedConfig) error {
	cat, err := source.Build(cfg.Sources)
	if err != nil {
		return err
	}
	e.Reconfigure(cfg.Engine, cat)
	return nil
}

func notify(c chan<- struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// recordErr keeps a tick failure for Status unless the engine has since
// been disabled or shut down.
func (e *Engine) recordErr(dst *error, err error) {
	if errors.Is(err, ErrDisabled) || errors.Is(err, ErrClosed) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gateLocked() == nil {
		*dst = err
	}
}

// gate reports why Poll or Refresh may not run.
func (e *Engine) gate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gateLocked()
}

func (e *Engine) gateLocked() error {
	if e.closed {
		return ErrClosed
	}
	if !e.Config().IsEnabled() {
		return ErrDisabled
	}
	return nil
}

func (e *Engine) setPaused(p bool) {
	e.poller.SetPaused(p)
	e.ticker.SetPaused(p)
	e.banner.SetPaused(p)
}

// Shutdown stops every loop and waits for them. Poll and Refresh calls
// still fetching discard their results and return ErrClosed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.poller.Close()

	e.runMu.Lock()
	cancel := e.cancel
	e.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.log.CloseSubscriptions()
	e.logger.Info("engine stopped")
}

// Config returns the active engine settings.
func (e *Engine) Config() config.EngineConf { return *e.conf.Load() }

// Catalog returns the active source catalog.
func (e *Engine) Catalog() *source.Catalog { return e.catalog.Load() }

// Log exposes the notification log for callbacks and subscriptions.
func (e *Engine) Log() *feed.Log { return e.log }

// Notifications returns the buffered items, oldest first.
func (e *Engine) Notifications() []activity.Item { return e.log.Snapshot() }

// Snapshot returns the shuffled snapshot as shown by the banner.
func (e *Engine) Snapshot() []activity.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]activity.Item(nil), e.shuffled...)
}

// Ranked returns the snapshot in its sorted order, newest first.
func (e *Engine) Ranked() []activity.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]activity.Item(nil), e.snapshot...)
}

// Ticker returns the ticker rotator's current item.
func (e *Engine) Ticker() (activity.Item, bool) { return e.ticker.Current() }

// Banner returns the banner rotator's current item.
func (e *Engine) Banner() (activity.Item, bool) { return e.banner.Current() }

// Subscribe streams newly admitted items.
func (e *Engine) Subscribe(buffer int) *feed.Subscription { return e.log.Subscribe(buffer) }

// Status reports counters and watermarks.
func (e *Engine) Status() Status {
	e.mu.RLock()
	st := Status{
		SnapshotLen: len(e.snapshot),
		LastPoll:    e.lastPoll,
		LastRefresh: e.lastRefresh,
	}
	if e.pollErr != nil {
		st.PollError = e.pollErr.Error()
	}
	if e.refreshErr != nil {
		st.RefreshError = e.refreshErr.Error()
	}
	e.mu.RUnlock()

	st.Enabled = e.Config().IsEnabled()
	st.Phase = e.poller.Phase()
	st.Sources = len(e.Catalog().Snapshot())
	st.Watermarks = e.poller.Watermarks()
	st.BufferLen = e.log.Len()
	st.BufferCap = e.log.Cap()
	st.SeenIDs = e.seen.Len()
	st.Subscribers = e.log.Subscribers()
	st.TickerCursor = e.ticker.Cursor()
	st.BannerCursor = e.banner.Cursor()
	return st
}
