package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
)

// Memory is an in-process Store used by tests and the memory driver.
type Memory struct {
	mu       sync.RWMutex
	rows     map[string][]source.Row
	profiles map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		rows:     make(map[string][]source.Row),
		profiles: make(map[string]map[string]any),
	}
}

// Insert appends rows to an entity.
func (m *Memory) Insert(entity string, rows ...source.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.rows[entity] = append(m.rows[entity], maps.Clone(r))
	}
}

// PutProfile stores a profile keyed by id.
func (m *Memory) PutProfile(id any, profile map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[fmt.Sprint(id)] = maps.Clone(profile)
}

func (m *Memory) Fetch(ctx context.Context, q Query) ([]source.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []source.Row
	for _, r := range m.rows[q.Entity] {
		if !q.Since.IsZero() {
			ts, ok := r.Time(q.TimeColumn)
			if !ok || !ts.After(q.Since) {
				continue
			}
		}
		if !filter.Match(q.Where, r) {
			continue
		}
		out = append(out, maps.Clone(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Time(q.TimeColumn)
		tj, _ := out[j].Time(q.TimeColumn)
		return ti.After(tj)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for _, ref := range q.Relations {
		attach(out, ref, m.profiles)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
