package engine

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	minSeenSize = 256
	minSeenTTL  = time.Hour
)

// SeenIndex remembers composite ids of admitted items. Entries expire after
// a TTL and the least recently admitted are evicted beyond the size bound;
// watermarks keep re-delivery confined to one tick's overlap, so a bounded
// window is enough.
type SeenIndex struct {
	mu   sync.Mutex
	lru  *expirable.LRU[string, struct{}]
	size int
	ttl  time.Duration
}

// NewSeenIndex creates an index holding up to size ids for ttl each.
func NewSeenIndex(size int, ttl time.Duration) *SeenIndex {
	return &SeenIndex{
		lru:  expirable.NewLRU[string, struct{}](size, nil, ttl),
		size: size,
		ttl:  ttl,
	}
}

// SeenSize is the default bound: max(256, maxNotifications × sources × 8).
func SeenSize(maxNotifications, sources int) int {
	return max(minSeenSize, maxNotifications*sources*8)
}

// SeenTTL is the default retention: max(1h, 4 × poll interval).
func SeenTTL(pollInterval time.Duration) time.Duration {
	return max(minSeenTTL, 4*pollInterval)
}

// Admit records id and reports whether it was new.
func (s *SeenIndex) Admit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru.Contains(id) {
		return false
	}
	s.lru.Add(id, struct{}{})
	return true
}

// Len returns the number of remembered ids.
func (s *SeenIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Reset applies new bounds, carrying over remembered ids. A TTL change
// restarts the expiry clock of carried ids.
func (s *SeenIndex) Reset(size int, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl == s.ttl {
		if size != s.size {
			s.lru.Resize(size)
			s.size = size
		}
		return
	}
	next := expirable.NewLRU[string, struct{}](size, nil, ttl)
	for _, k := range s.lru.Keys() {
		next.Add(k, struct{}{})
	}
	s.lru, s.size, s.ttl = next, size, ttl
}
