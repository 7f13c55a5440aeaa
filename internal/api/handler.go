package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/config"
	"github.com/gyaneshwarpardhi/livefeed/internal/engine"
)

// QueueReporter reports how full a work queue is (0–1).
type QueueReporter interface {
	QueueUtilization() float64
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	queue  QueueReporter
	logger *slog.Logger
}

// New creates the HTTP server and registers all routes. queue may be nil
// when no sinks are configured.
func New(eng *engine.Engine, loader *config.Loader, queue QueueReporter, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{eng: eng, loader: loader, queue: queue, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	v1 := e.Group("/v1")
	v1.GET("/notifications", h.notifications)
	v1.GET("/snapshot", h.snapshot)
	v1.GET("/ticker", h.ticker)
	v1.GET("/banner", h.banner)
	v1.GET("/sources", h.sources)
	v1.GET("/status", h.status)
	v1.GET("/stream", h.stream)
	v1.POST("/config/reload", h.reloadConfig)

	e.GET("/healthz", h.healthz)
	e.GET("/readyz", h.readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"err", v.Error)
			return nil
		},
	})
}

// GET /v1/notifications: the notification buffer, oldest first.
func (h *Handler) notifications(c echo.Context) error {
	items := h.eng.Notifications()
	if c.QueryParam("order") == "newest" {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return writeJSON(c, http.StatusOK, items)
}

// GET /v1/snapshot: the shuffled top-K snapshot; ?ranked=true for the
// chronological order.
func (h *Handler) snapshot(c echo.Context) error {
	if c.QueryParam("ranked") == "true" {
		return writeJSON(c, http.StatusOK, h.eng.Ranked())
	}
	return writeJSON(c, http.StatusOK, h.eng.Snapshot())
}

// GET /v1/ticker: the item the ticker currently shows, null when empty.
func (h *Handler) ticker(c echo.Context) error {
	return writeCurrent(c, h.eng.Ticker)
}

// GET /v1/banner: the item the banner currently shows, null when empty.
func (h *Handler) banner(c echo.Context) error {
	return writeCurrent(c, h.eng.Banner)
}

func writeCurrent(c echo.Context, current func() (activity.Item, bool)) error {
	it, ok := current()
	if !ok {
		return writeJSON(c, http.StatusOK, nil)
	}
	return writeJSON(c, http.StatusOK, it)
}

type sourceView struct {
	ID            string          `json:"id"`
	Entity        string          `json:"entity"`
	Kinds         []activity.Kind `json:"kinds"`
	Filter        string          `json:"filter,omitempty"`
	Priority      int             `json:"priority"`
	Incremental   bool            `json:"incremental"`
	Enabled       bool            `json:"enabled"`
	PollLimit     int             `json:"poll_limit,omitempty"`
	SnapshotLimit int             `json:"snapshot_limit"`
	Watermark     *time.Time      `json:"watermark,omitempty"`
}

// GET /v1/sources: the source catalog with current watermarks.
func (h *Handler) sources(c echo.Context) error {
	watermarks := h.eng.Status().Watermarks
	all := h.eng.Catalog().All()
	out := make([]sourceView, 0, len(all))
	for _, d := range all {
		v := sourceView{
			ID:            d.ID,
			Entity:        d.Entity,
			Kinds:         d.Kinds,
			Filter:        d.Filter,
			Priority:      d.Priority,
			Incremental:   d.Incremental,
			Enabled:       d.Enabled,
			PollLimit:     d.PollLimit,
			SnapshotLimit: d.SnapshotLimit,
		}
		if wm, ok := watermarks[d.ID]; ok {
			v.Watermark = &wm
		}
		out = append(out, v)
	}
	return writeJSON(c, http.StatusOK, out)
}

// GET /v1/status: engine counters.
func (h *Handler) status(c echo.Context) error {
	return writeJSON(c, http.StatusOK, h.eng.Status())
}

// POST /v1/config/reload: re-read the config file and apply it.
func (h *Handler) reloadConfig(c echo.Context) error {
	cfg, err := h.loader.Reload()
	if err != nil {
		return writeError(c, http.StatusUnprocessableEntity, err.Error())
	}
	return writeJSON(c, http.StatusOK, map[string]any{
		"reloaded":      true,
		"version":       cfg.Version,
		"enabled":       cfg.Engine.IsEnabled(),
		"sources_count": len(h.eng.Catalog().Snapshot()),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the engine is disabled or the sink queue is >80% full.
func (h *Handler) readyz(c echo.Context) error {
	var util float64
	if h.queue != nil {
		util = h.queue.QueueUtilization()
	}
	enabled := h.eng.Config().IsEnabled()
	switch {
	case !enabled:
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":            "disabled",
			"queue_utilization": util,
		})
	case util > 0.8:
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
