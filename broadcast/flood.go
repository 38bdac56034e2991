// SPDX-License-Identifier: LGPL-3.0-or-later

package broadcast

import (
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/ember-net/ember/transport"
)

// Flood is the bounded-fanout epidemic fallback spec.md §4.7 calls for
// in small or still-converging networks ("active-view size ≤ 2"): a
// TTL-bounded flood with bloom-filter deduplication, independent of the
// Plumtree tree state. Callers own their own message type/fields (e.g.
// the post engine's new_post envelope) and only ask Flood to decide
// dedup and pick a fanout of peers to forward to.
type Flood struct {
	self       transport.PeerID
	tr         *transport.Transport
	fanout     int
	maxHops    int
	peerSource func() []transport.PeerID

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// floodExpectedElements/floodFalsePositiveRate size the bloom filter for
// a busy relay's worth of flooded message ids.
const (
	floodExpectedElements  = 100000
	floodFalsePositiveRate = 0.01
)

// NewFlood constructs a Flood. peerSource returns the current candidate
// peer set to flood to (typically the overlay's combined active+passive
// view, or the full connected-peer list on a small network).
func NewFlood(self transport.PeerID, tr *transport.Transport, fanout, maxHops int, peerSource func() []transport.PeerID) *Flood {
	if fanout <= 0 {
		fanout = 3
	}
	if maxHops <= 0 {
		maxHops = 10
	}
	return &Flood{
		self:       self,
		tr:         tr,
		fanout:     fanout,
		maxHops:    maxHops,
		peerSource: peerSource,
		seen:       bloom.NewWithEstimates(floodExpectedElements, floodFalsePositiveRate),
	}
}

// MaxHops reports the configured TTL ceiling.
func (f *Flood) MaxHops() int { return f.maxHops }

// Seen tests-and-marks id against the bloom filter, returning true if it
// was already present (a duplicate to be dropped).
func (f *Flood) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen.TestString(id) {
		return true
	}
	f.seen.AddString(id)
	return false
}

// ForwardRandom sends fields (with "type": msgType merged in by the
// transport layer) to a random fanout-sized subset of candidate peers,
// excluding except and self.
func (f *Flood) ForwardRandom(msgType string, fields map[string]any, except transport.PeerID) {
	candidates := f.peerSource()
	picked := pickRandom(candidates, f.fanout, except, f.self)
	for _, peer := range picked {
		_ = f.tr.Send(peer, msgType, fields)
	}
}

func pickRandom(candidates []transport.PeerID, n int, exclude ...transport.PeerID) []transport.PeerID {
	skip := make(map[transport.PeerID]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	pool := make([]transport.PeerID, 0, len(candidates))
	for _, c := range candidates {
		if !skip[c] {
			pool = append(pool, c)
		}
	}
	if len(pool) <= n {
		return pool
	}
	// Fisher-Yates partial shuffle, first n elements.
	for i := 0; i < n; i++ {
		j := i + rand.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
