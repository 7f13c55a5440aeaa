package engine

import (
	"math/rand/v2"
	"slices"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
)

const (
	// fairWindow is how many consecutive selections an actor is held back for.
	fairWindow = 3
	// recentCap bounds the remembered actor ids: fairWindow selections of up
	// to two actors each.
	recentCap = fairWindow * 2
)

// Rand is the randomness Shuffle draws from. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a PCG source for seed, or the runtime's global source when
// seed is zero.
func NewRand(seed int64) Rand {
	if seed == 0 {
		return globalRand{}
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Shuffle permutes items so that an actor does not reappear within the next
// few selections whenever another candidate exists. Lists of three or fewer
// are returned in their original order. The input is not modified.
func Shuffle(items []activity.Item, rng Rand) []activity.Item {
	if len(items) <= fairWindow {
		return slices.Clone(items)
	}

	pool := slices.Clone(items)
	out := make([]activity.Item, 0, len(items))
	var recent []string
	candidates := make([]int, 0, len(pool))

	for len(pool) > 0 {
		candidates = candidates[:0]
		for i, it := range pool {
			if !involvesAny(it, recent) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			for i := range pool {
				candidates = append(candidates, i)
			}
		}

		idx := candidates[rng.IntN(len(candidates))]
		picked := pool[idx]
		out = append(out, picked)
		pool = slices.Delete(pool, idx, idx+1)

		recent = append(recent, picked.Actors()...)
		if len(recent) > recentCap {
			recent = recent[len(recent)-recentCap:]
		}
	}
	return out
}

func involvesAny(it activity.Item, actors []string) bool {
	for _, a := range it.Actors() {
		if slices.Contains(actors, a) {
			return true
		}
	}
	return false
}
