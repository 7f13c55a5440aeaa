package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/api"
	"github.com/gyaneshwarpardhi/livefeed/internal/config"
	"github.com/gyaneshwarpardhi/livefeed/internal/engine"
	"github.com/gyaneshwarpardhi/livefeed/internal/sink"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
	"github.com/gyaneshwarpardhi/livefeed/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/feed.yaml", "Path to feed YAML config")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Source catalog ───────────────────────────────────────────────────────
	cat, err := source.Build(cfg.Sources)
	if err != nil {
		slog.Error("failed to build source catalog", "err", err)
		os.Exit(1)
	}
	slog.Info("source catalog built",
		"sources", len(cat.Snapshot()),
		"incremental", len(cat.Incremental()),
		"kinds", len(source.Kinds(cat.Snapshot())))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Event store ──────────────────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open event store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── Sinks ────────────────────────────────────────────────────────────────
	reg := sink.NewRegistry()
	if cfg.Sinks.Redis.Enabled {
		r, err := sink.NewRedis(ctx, cfg.Sinks.Redis)
		if err != nil {
			slog.Error("failed to connect redis sink", "err", err)
			os.Exit(1)
		}
		reg.Register(r)
	}
	if cfg.Sinks.Kafka.Enabled {
		reg.Register(sink.NewKafka(cfg.Sinks.Kafka))
	}
	defer reg.Close()

	// ── Engine ───────────────────────────────────────────────────────────────
	eng := engine.New(st, cat, cfg.Engine, engine.Options{Logger: logger})

	var queue api.QueueReporter
	var disp *sink.Dispatcher
	if len(reg.Names()) > 0 {
		disp = sink.NewDispatcher(ctx, reg, cfg.Sinks.Workers, cfg.Sinks.QueueDepth, logger)
		eng.Log().OnAppend(func(it activity.Item) {
			if !disp.Submit(it) {
				slog.Warn("sink queue full, item not republished", "item", it.ID)
			}
		})
		queue = disp
		slog.Info("sinks enabled", "sinks", reg.Names(), "workers", cfg.Sinks.Workers)
	}

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.AddCheck(func(c *config.FeedConfig) error {
		_, err := source.Build(c.Sources)
		return err
	})
	loader.OnChange(func(newCfg *config.FeedConfig) {
		if err := eng.Apply(newCfg); err != nil {
			slog.Warn("hot-reload skipped: catalog build failed", "err", err)
			return
		}
		slog.Info("config hot-reloaded", "version", newCfg.Version)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	eng.Start(ctx)

	// ── HTTP server ──────────────────────────────────────────────────────────
	listen := cfg.HTTP.Addr
	if *addr != "" {
		listen = *addr
	}
	srv := &http.Server{
		Addr:         listen,
		Handler:      api.New(eng, loader, queue, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	eng.Shutdown()
	if disp != nil {
		disp.Drain()
	}
	cancel()
	slog.Info("goodbye")
}
