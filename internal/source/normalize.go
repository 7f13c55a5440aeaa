package source

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
)

// Normalization failures. All of them mean "drop the row".
var (
	ErrMissingActor = errors.New("normalize: required actor missing")
	ErrBadTimestamp = errors.New("normalize: unparseable timestamp")
	ErrMissingID    = errors.New("normalize: row has no id")
	ErrFiltered     = errors.New("normalize: row rejected by source filter")
)

// PreviewRunes is the character budget for content previews.
const PreviewRunes = 24

// Normalize converts one raw row of source d into an activity item.
func Normalize(d *Descriptor, r Row) (activity.Item, error) {
	ok, err := filter.Evaluate(d.expr, r)
	if err != nil {
		return activity.Item{}, fmt.Errorf("%w: %v", ErrFiltered, err)
	}
	if !ok {
		return activity.Item{}, ErrFiltered
	}

	rowID := r.String("id")
	if rowID == "" {
		return activity.Item{}, ErrMissingID
	}
	ts, ok := r.Time(d.TimeColumn)
	if !ok {
		return activity.Item{}, fmt.Errorf("%w: %s=%v", ErrBadTimestamp, d.TimeColumn, r[d.TimeColumn])
	}

	it := activity.Item{
		ID:        activity.CompositeID(d.ID, rowID),
		Source:    d.ID,
		RowID:     rowID,
		Timestamp: ts,
	}
	for i, ref := range d.Actors {
		a, ok := ResolveActor(r.Relation(ref.Relation))
		if !ok {
			if ref.Required {
				return activity.Item{}, fmt.Errorf("%w: %s", ErrMissingActor, ref.Relation)
			}
			continue
		}
		if i == 0 {
			it.Actor = a
		} else {
			it.Target = &a
		}
	}
	if len(d.Kinds) > 0 {
		it.Kind = d.Kinds[0]
	}
	if d.fill != nil {
		if err := d.fill(r, &it); err != nil {
			return activity.Item{}, err
		}
	}
	return it, nil
}

// ResolveActor builds a display identity from a joined profile:
// display_name, else username, else a shortened wallet address.
func ResolveActor(profile map[string]any) (activity.Actor, bool) {
	if profile == nil {
		return activity.Actor{}, false
	}
	name := str(profile["display_name"])
	if name == "" {
		name = str(profile["username"])
	}
	if name == "" {
		name = ShortWallet(str(profile["wallet_address"]))
	}
	if name == "" {
		return activity.Actor{}, false
	}
	a := activity.Actor{DisplayName: name}
	if url := str(profile["avatar_url"]); url != "" {
		a.AvatarURL = &url
	}
	return a, true
}

// ShortWallet renders 0x1234567890abcdef as 0x1234…cdef.
func ShortWallet(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Amount returns the first column that holds a number, or 0.
func Amount(r Row, columns ...string) float64 {
	for _, c := range columns {
		if v, ok := r.Number(c); ok {
			return v
		}
	}
	return 0
}

// Preview truncates free text to PreviewRunes, marking truncation with "…".
func Preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= PreviewRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:PreviewRunes]), " ") + "…"
}
