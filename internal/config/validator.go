package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for:
//   - field ranges declared in struct tags
//   - duplicate source overrides
//   - driver and sink settings that must travel together
func Validate(cfg *FeedConfig) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config validation: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}

	seen := make(map[string]int)
	for i, s := range cfg.Sources {
		if prev, ok := seen[s.ID]; ok && s.ID != "" {
			errs = append(errs, fmt.Sprintf("sources[%d]: duplicate id %q (first seen at sources[%d])", i, s.ID, prev))
			continue
		}
		seen[s.ID] = i
	}

	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, "store: postgres driver needs postgres_dsn (or POSTGRES_DSN)")
		}
	case "mongo":
		if cfg.Store.MongoURI == "" {
			errs = append(errs, "store: mongo driver needs mongo_uri (or MONGO_URI)")
		}
	}

	if cfg.Sinks.Redis.Enabled && cfg.Sinks.Redis.Addr == "" {
		errs = append(errs, "sinks.redis: addr is required when enabled")
	}
	if cfg.Sinks.Kafka.Enabled && (len(cfg.Sinks.Kafka.Brokers) == 0 || cfg.Sinks.Kafka.Topic == "") {
		errs = append(errs, "sinks.kafka: brokers and topic are required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
