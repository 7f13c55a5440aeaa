package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	l, err := config.NewLoader(writeConfig(t, "version: \"1\"\n"))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	e := l.Config().Engine
	if e.PollIntervalMs != 45000 || e.RefreshIntervalMs != 30000 {
		t.Errorf("intervals = %d/%d, want 45000/30000", e.PollIntervalMs, e.RefreshIntervalMs)
	}
	if e.MaxNotifications != 10 || e.TopK != 30 {
		t.Errorf("capacities = %d/%d, want 10/30", e.MaxNotifications, e.TopK)
	}
	if !e.IsEnabled() {
		t.Error("engine should default to enabled")
	}
	if err := config.Validate(l.Config()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoader_InitialLookback(t *testing.T) {
	cases := []struct {
		name string
		body string
		want time.Duration
	}{
		{"unset defaults to an hour", "version: \"1\"\n", time.Hour},
		{"explicit zero is kept", "version: \"1\"\nengine:\n  initial_lookback_ms: 0\n", 0},
		{"explicit value", "version: \"1\"\nengine:\n  initial_lookback_ms: 90000\n", 90 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := config.NewLoader(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("NewLoader: %v", err)
			}
			if got := l.Config().Engine.InitialLookback(); got != tc.want {
				t.Errorf("InitialLookback = %v, want %v", got, tc.want)
			}
			if err := config.Validate(l.Config()); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLoader_ParsesOverrides(t *testing.T) {
	path := writeConfig(t, `
version: "2"
engine:
  enabled: false
  poll_interval_ms: 5000
  top_k: 12
sources:
  - id: pixels
    enabled: false
  - id: swipes
    poll_limit: 4
`)
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()
	if cfg.Engine.IsEnabled() {
		t.Error("enabled: false was not honoured")
	}
	if cfg.Engine.PollIntervalMs != 5000 || cfg.Engine.TopK != 12 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].PollLimit != 4 {
		t.Errorf("sources = %+v", cfg.Sources)
	}
}

func TestLoader_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	var got *config.FeedConfig
	l.OnChange(func(c *config.FeedConfig) { got = c })

	if err := os.WriteFile(path, []byte("version: \"1\"\nengine:\n  top_k: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got == nil || got.Engine.TopK != 7 {
		t.Fatalf("OnChange got %+v", got)
	}

	// An invalid file must not replace the current config.
	if err := os.WriteFile(path, []byte("version: \"1\"\nengine:\n  top_k: -3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected validation error on reload")
	}
	if l.Config().Engine.TopK != 7 {
		t.Errorf("config replaced by invalid reload: top_k=%d", l.Config().Engine.TopK)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.FeedConfig)
		want   string
	}{
		{
			name:   "duplicate source",
			mutate: func(c *config.FeedConfig) { c.Sources = []config.SourceConf{{ID: "tips"}, {ID: "tips"}} },
			want:   "duplicate id",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *config.FeedConfig) { c.Store.Driver = "postgres"; c.Store.PostgresDSN = "" },
			want:   "postgres_dsn",
		},
		{
			name:   "unknown driver",
			mutate: func(c *config.FeedConfig) { c.Store.Driver = "cassandra" },
			want:   "oneof",
		},
		{
			name:   "poll interval too small",
			mutate: func(c *config.FeedConfig) { c.Engine.PollIntervalMs = 10 },
			want:   "PollIntervalMs",
		},
		{
			name:   "kafka without topic",
			mutate: func(c *config.FeedConfig) { c.Sinks.Kafka.Enabled = true; c.Sinks.Kafka.Topic = "" },
			want:   "sinks.kafka",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoader_ChecksRejectReload(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	l.AddCheck(func(c *config.FeedConfig) error {
		for _, s := range c.Sources {
			if s.ID == "faxes" {
				return errors.New("unknown source faxes")
			}
		}
		return nil
	})
	called := false
	l.OnChange(func(*config.FeedConfig) { called = true })

	if err := os.WriteFile(path, []byte("version: \"2\"\nsources:\n  - id: faxes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected check to reject reload")
	}
	if called || l.Config().Version != "1" {
		t.Errorf("rejected reload leaked: called=%v version=%s", called, l.Config().Version)
	}
}
