package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
)

// Row is one raw backend record. Joined actor relations appear as nested
// maps under their relation name.
type Row map[string]any

// Resolve implements filter.Resolver.
func (r Row) Resolve(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, p := range path {
		var m map[string]any
		switch v := cur.(type) {
		case map[string]any:
			m = v
		case Row:
			m = v
		default:
			return nil, false
		}
		val, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

// Relation returns the joined map for a relation, or nil when the join is
// missing (deleted profile, dangling foreign key).
func (r Row) Relation(name string) map[string]any {
	switch v := r[name].(type) {
	case map[string]any:
		return v
	case Row:
		return v
	}
	return nil
}

// String returns the trimmed string form of a column, "" when absent.
func (r Row) String(key string) string {
	return str(r[key])
}

// Number returns a numeric column.
func (r Row) Number(key string) (float64, bool) {
	return filter.Number(r[key])
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time parses a timestamp column. Zero, out-of-range and unparseable values
// report false.
func (r Row) Time(key string) (time.Time, bool) {
	var t time.Time
	switch v := r[key].(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		t = *v
	case string:
		parsed, ok := parseTime(strings.TrimSpace(v))
		if !ok {
			return time.Time{}, false
		}
		t = parsed
	case []byte:
		parsed, ok := parseTime(strings.TrimSpace(string(v)))
		if !ok {
			return time.Time{}, false
		}
		t = parsed
	case int64:
		t = time.UnixMilli(v)
	default:
		return time.Time{}, false
	}
	if t.IsZero() || t.Year() < 1970 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
