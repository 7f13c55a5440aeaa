// Package store implements the read contract the activity engine needs
// from the backend: rows newer than a watermark, newest first, capped, with
// actor profiles joined in.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/config"
	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
)

// Query is one bounded read of a single source.
type Query struct {
	Entity     string
	TimeColumn string
	Since      time.Time // exclusive; zero means unbounded
	Limit      int
	Where      []filter.Constraint
	Relations  []source.ActorRef
}

// QueryFor builds the read for descriptor d.
func QueryFor(d *source.Descriptor, since time.Time, limit int) Query {
	return Query{
		Entity:     d.Entity,
		TimeColumn: d.TimeColumn,
		Since:      since,
		Limit:      limit,
		Where:      d.Where(),
		Relations:  d.Actors,
	}
}

// Store is a read-only event store.
type Store interface {
	Fetch(ctx context.Context, q Query) ([]source.Row, error)
	Close() error
}

// Open connects to the store selected in conf.
func Open(ctx context.Context, conf config.StoreConf) (Store, error) {
	switch conf.Driver {
	case "postgres":
		return NewPostgres(conf.PostgresDSN)
	case "mongo":
		return NewMongo(ctx, conf.MongoURI, conf.MongoDatabase)
	case "memory", "":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", conf.Driver)
}

// foreignKeys collects the distinct non-null values of column across rows.
func foreignKeys(rows []source.Row, column string) []any {
	seen := make(map[string]struct{})
	var out []any
	for _, r := range rows {
		v := r[column]
		if v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// attach stores each row's profile under ref.Relation. Missing profiles
// leave the relation unset so the normalizer can drop the row.
func attach(rows []source.Row, ref source.ActorRef, profiles map[string]map[string]any) {
	for _, r := range rows {
		if v := r[ref.Column]; v != nil {
			if p, ok := profiles[fmt.Sprint(v)]; ok {
				r[ref.Relation] = p
			}
		}
	}
}
