// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// Contact is one routing-table entry (spec.md §4.2: {node_id, peer_ref,
// last_seen, rtt, failures}).
type Contact struct {
	NodeID   NodeID
	Peer     transport.PeerID
	Addr     string
	LastSeen time.Time
	RTT      time.Duration
	Failures int
}

// PingFunc lets the routing table probe a contact's liveness before
// evicting it, without the table depending on the RPC layer directly.
type PingFunc func(c Contact) bool

// RoutingTable is the 160-bucket Kademlia table, each bucket holding up
// to k contacts.
type RoutingTable struct {
	self NodeID
	k    int
	ping PingFunc

	mu      sync.Mutex
	buckets [160][]Contact
}

// NewRoutingTable constructs an empty table for self with bucket capacity
// k (spec.md default K = 20).
func NewRoutingTable(self NodeID, k int, ping PingFunc) *RoutingTable {
	if k <= 0 {
		k = 20
	}
	return &RoutingTable{self: self, k: k, ping: ping}
}

// Add inserts or refreshes a contact. If its bucket is full, the
// least-recently-seen entry is pinged: alive, the candidate is dropped;
// dead, it's evicted in favor of the candidate (spec.md §4.2).
func (rt *RoutingTable) Add(c Contact) {
	if c.NodeID == rt.self {
		return
	}
	idx := bucketIndex(rt.self, c.NodeID)

	rt.mu.Lock()
	bucket := rt.buckets[idx]

	for i, existing := range bucket {
		if existing.NodeID == c.NodeID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			bucket = append(bucket, c)
			rt.buckets[idx] = bucket
			rt.mu.Unlock()
			metrics.DHTRoutingTableSize.Set(float64(rt.Count()))
			return
		}
	}

	if len(bucket) < rt.k {
		rt.buckets[idx] = append(bucket, c)
		rt.mu.Unlock()
		metrics.DHTRoutingTableSize.Set(float64(rt.Count()))
		return
	}

	oldest := bucket[0]
	rt.mu.Unlock()

	if rt.ping != nil && rt.ping(oldest) {
		rt.mu.Lock()
		bucket = rt.buckets[idx]
		if len(bucket) > 0 {
			bucket = append(bucket[1:], bucket[0])
			rt.buckets[idx] = bucket
		}
		rt.mu.Unlock()
		return
	}

	rt.mu.Lock()
	bucket = rt.buckets[idx]
	if len(bucket) > 0 {
		bucket = append(bucket[1:], c)
		rt.buckets[idx] = bucket
	}
	rt.mu.Unlock()
	metrics.DHTRoutingTableSize.Set(float64(rt.Count()))
}

// RecordFailure increments a contact's failure count, used when an RPC to
// it times out (spec.md §4.2 "RPC timeouts increment failures").
func (rt *RoutingTable) RecordFailure(id NodeID) {
	idx := bucketIndex(rt.self, id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	bucket := rt.buckets[idx]
	for i, c := range bucket {
		if c.NodeID == id {
			bucket[i].Failures++
			return
		}
	}
}

// Remove drops a contact entirely.
func (rt *RoutingTable) Remove(id NodeID) {
	idx := bucketIndex(rt.self, id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	bucket := rt.buckets[idx]
	for i, c := range bucket {
		if c.NodeID == id {
			rt.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Closest returns up to count contacts sorted by ascending XOR distance
// to target, ties broken lexicographically on the distance (spec.md
// §4.2).
func (rt *RoutingTable) Closest(target NodeID, count int) []Contact {
	rt.mu.Lock()
	var all []Contact
	for _, bucket := range rt.buckets {
		all = append(all, bucket...)
	}
	rt.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return xorDistance(all[i].NodeID, target).Cmp(xorDistance(all[j].NodeID, target)) < 0
	})
	if len(all) > count {
		all = all[:count]
	}
	return all
}

// Count returns the total number of contacts across all buckets.
func (rt *RoutingTable) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for _, b := range rt.buckets {
		n += len(b)
	}
	return n
}
