// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/ember-net/ember/internal/metrics"
)

// seenTierSpec names and windows spec.md §4.8's three dedup tiers.
var seenTierSpec = []struct {
	name   string
	window time.Duration
}{
	{"1h", time.Hour},
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
}

const (
	seenExpectedElements = 200000
	// reseedFraction is spec.md §4.8's "when > 50% of tracked timestamps
	// have aged out, re-seed the filters from the remaining live ids."
	reseedFraction = 0.5
)

type seenTier struct {
	window     time.Duration
	bloom      *bloom.BloomFilter
	totalAdded int
}

// seenFilter is a hierarchical bloom dedup filter: three tiers of
// increasing window (1h/24h/7d), each periodically rebuilt from a master
// record of still-live ids once enough of its population has aged past
// its own window — a plain bloom filter has no delete, so expiry is
// implemented as "rebuild from survivors" rather than per-id removal.
type seenFilter struct {
	fpRate float64

	mu    sync.Mutex
	tiers []*seenTier
	ids   map[string]time.Time
}

func newSeenFilter(fpRate float64) *seenFilter {
	tiers := make([]*seenTier, len(seenTierSpec))
	for i, spec := range seenTierSpec {
		tiers[i] = &seenTier{
			window: spec.window,
			bloom:  bloom.NewWithEstimates(seenExpectedElements, fpRate),
		}
	}
	return &seenFilter{
		fpRate: fpRate,
		tiers:  tiers,
		ids:    make(map[string]time.Time),
	}
}

func (f *seenFilter) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	found := false
	for i, t := range f.tiers {
		outcome := "miss"
		if t.bloom.TestString(id) {
			found = true
			outcome = "hit"
		}
		metrics.SeenFilterHits.WithLabelValues(seenTierSpec[i].name, outcome).Inc()
	}
	return found
}

func (f *seenFilter) add(id string) {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.ids[id]; exists {
		return
	}
	f.ids[id] = now
	for i, t := range f.tiers {
		t.bloom.AddString(id)
		t.totalAdded++
		f.maybeReseed(i, now)
	}
	f.evictExpired(now)
}

// maybeReseed rebuilds tier i's bloom filter from the master record's
// still-live ids once more than reseedFraction of what it has tracked has
// aged out of its window.
func (f *seenFilter) maybeReseed(i int, now time.Time) {
	t := f.tiers[i]
	if t.totalAdded == 0 {
		return
	}
	live := 0
	for _, at := range f.ids {
		if now.Sub(at) <= t.window {
			live++
		}
	}
	agedOut := t.totalAdded - live
	if float64(agedOut) <= reseedFraction*float64(t.totalAdded) {
		return
	}

	fresh := bloom.NewWithEstimates(seenExpectedElements, f.fpRate)
	for id, at := range f.ids {
		if now.Sub(at) <= t.window {
			fresh.AddString(id)
		}
	}
	t.bloom = fresh
	t.totalAdded = live
}

// evictExpired drops ids from the master record once they've aged past
// the longest tier's window; nothing still needs them after that.
func (f *seenFilter) evictExpired(now time.Time) {
	longest := f.tiers[len(f.tiers)-1].window
	for id, at := range f.ids {
		if now.Sub(at) > longest {
			delete(f.ids, id)
		}
	}
}
