package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *FeedConfig
	onChange []func(*FeedConfig)
	checks   []func(*FeedConfig) error
}

// NewLoader loads .env (if present) and performs the initial load of path.
func NewLoader(path string) (*Loader, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *FeedConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*FeedConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// AddCheck registers an extra validation run on every reload, after
// Validate. A failing check rejects the reloaded file.
func (l *Loader) AddCheck(fn func(*FeedConfig) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks = append(l.checks, fn)
}

// Watch hot-reloads the config on file changes until stop is called.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload re-reads the config file, validates it and notifies listeners.
// An invalid file leaves the current config in place.
func (l *Loader) Reload() (*FeedConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.RLock()
	checks := slices.Clone(l.checks)
	l.mu.RUnlock()
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*FeedConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*FeedConfig, error) {
	var cfg FeedConfig
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	}
	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *FeedConfig {
	cfg := &FeedConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued settings.
func ApplyDefaults(cfg *FeedConfig) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	e := &cfg.Engine
	if e.PollIntervalMs == 0 {
		e.PollIntervalMs = 45000
	}
	if e.RefreshIntervalMs == 0 {
		e.RefreshIntervalMs = 30000
	}
	if e.TickerRotationMs == 0 {
		e.TickerRotationMs = 4000
	}
	if e.BannerRotationMs == 0 {
		e.BannerRotationMs = 1500
	}
	if e.MaxNotifications == 0 {
		e.MaxNotifications = 10
	}
	if e.TopK == 0 {
		e.TopK = 30
	}
	if e.InitialLookbackMs == nil {
		ms := int(defaultLookback.Milliseconds())
		e.InitialLookbackMs = &ms
	}
	if e.FetchTimeoutMs == 0 {
		e.FetchTimeoutMs = 10000
	}
	if e.FetchConcurrency == 0 {
		e.FetchConcurrency = 8
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = "livefeed"
	}
	if cfg.Sinks.Workers == 0 {
		cfg.Sinks.Workers = 4
	}
	if cfg.Sinks.QueueDepth == 0 {
		cfg.Sinks.QueueDepth = 1024
	}
	if cfg.Sinks.Redis.Addr == "" {
		cfg.Sinks.Redis.Addr = "localhost:6379"
	}
	if cfg.Sinks.Redis.Channel == "" {
		cfg.Sinks.Redis.Channel = "livefeed:activity"
	}
	if len(cfg.Sinks.Kafka.Brokers) == 0 {
		cfg.Sinks.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Sinks.Kafka.Topic == "" {
		cfg.Sinks.Kafka.Topic = "live_activity"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
}

// applyEnv lets deployment secrets override the file.
func applyEnv(cfg *FeedConfig) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Store.MongoURI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Sinks.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Sinks.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Sinks.Kafka.Brokers = parts
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}
