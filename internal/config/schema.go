package config

import "time"

const defaultLookback = time.Hour

// FeedConfig is the top-level YAML structure.
type FeedConfig struct {
	Version string       `yaml:"version" validate:"required"`
	Engine  EngineConf   `yaml:"engine"`
	Sources []SourceConf `yaml:"sources" validate:"dive"`
	Store   StoreConf    `yaml:"store"`
	Sinks   SinksConf    `yaml:"sinks"`
	HTTP    HTTPConf     `yaml:"http"`
}

// EngineConf holds the timer and capacity settings of the activity engine.
type EngineConf struct {
	Enabled           *bool `yaml:"enabled"`
	PollIntervalMs    int   `yaml:"poll_interval_ms" validate:"min=1000"`
	RefreshIntervalMs int   `yaml:"refresh_interval_ms" validate:"min=1000"`
	TickerRotationMs  int   `yaml:"ticker_rotation_ms" validate:"min=100"`
	BannerRotationMs  int   `yaml:"banner_rotation_ms" validate:"min=100"`
	MaxNotifications  int   `yaml:"max_notifications" validate:"min=1,max=1000"`
	TopK              int   `yaml:"top_k" validate:"min=1,max=500"`
	InitialLookbackMs *int  `yaml:"initial_lookback_ms" validate:"omitempty,min=0"`
	SeenIndexSize     int   `yaml:"seen_index_size" validate:"min=0"`
	SeenIndexTTLMs    int   `yaml:"seen_index_ttl_ms" validate:"min=0"`
	FetchTimeoutMs    int   `yaml:"fetch_timeout_ms" validate:"min=100"`
	FetchConcurrency  int   `yaml:"fetch_concurrency" validate:"min=1,max=64"`
	ShuffleSeed       int64 `yaml:"shuffle_seed"`
}

// IsEnabled reports the enabled flag; unset means enabled.
func (c EngineConf) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

func (c EngineConf) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c EngineConf) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c EngineConf) TickerRotation() time.Duration {
	return time.Duration(c.TickerRotationMs) * time.Millisecond
}

func (c EngineConf) BannerRotation() time.Duration {
	return time.Duration(c.BannerRotationMs) * time.Millisecond
}

// InitialLookback is how far back a new source's watermark starts. Unset
// means one hour; an explicit 0 starts at the current time.
func (c EngineConf) InitialLookback() time.Duration {
	if c.InitialLookbackMs == nil {
		return defaultLookback
	}
	return time.Duration(*c.InitialLookbackMs) * time.Millisecond
}

func (c EngineConf) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c EngineConf) SeenIndexTTL() time.Duration {
	return time.Duration(c.SeenIndexTTLMs) * time.Millisecond
}

// SourceConf overrides one built-in source. Zero values keep the default.
type SourceConf struct {
	ID            string `yaml:"id" validate:"required"`
	Enabled       *bool  `yaml:"enabled"`
	PollLimit     int    `yaml:"poll_limit" validate:"min=0,max=50"`
	SnapshotLimit int    `yaml:"snapshot_limit" validate:"min=0,max=100"`
	Filter        string `yaml:"filter"`
}

// StoreConf selects and configures the event store.
type StoreConf struct {
	Driver        string `yaml:"driver" validate:"oneof=postgres mongo memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// SinksConf configures where admitted activities are republished.
type SinksConf struct {
	Workers    int       `yaml:"workers" validate:"min=1"`
	QueueDepth int       `yaml:"queue_depth" validate:"min=1"`
	Redis      RedisConf `yaml:"redis"`
	Kafka      KafkaConf `yaml:"kafka"`
}

type RedisConf struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type KafkaConf struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type HTTPConf struct {
	Addr string `yaml:"addr" validate:"required"`
}
