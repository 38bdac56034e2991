// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/transport"
)

func contactFor(t *testing.T, key string) Contact {
	t.Helper()
	return Contact{NodeID: IDFromKey(key), Peer: transport.PeerID(key), LastSeen: time.Now()}
}

func TestRoutingTableAddAndClosest(t *testing.T) {
	self := IDFromKey("self")
	rt := NewRoutingTable(self, 20, nil)

	for i := 0; i < 10; i++ {
		rt.Add(contactFor(t, "peer-"+string(rune('a'+i))))
	}
	require.Equal(t, 10, rt.Count())

	target := IDFromKey("peer-a")
	closest := rt.Closest(target, 3)
	assert.Len(t, closest, 3)
	assert.Equal(t, target, closest[0].NodeID)
}

func TestRoutingTableIgnoresSelf(t *testing.T) {
	self := IDFromKey("self")
	rt := NewRoutingTable(self, 20, nil)
	rt.Add(Contact{NodeID: self, Peer: "self-peer"})
	assert.Equal(t, 0, rt.Count())
}

func TestRoutingTableRefreshesExistingContact(t *testing.T) {
	self := IDFromKey("self")
	rt := NewRoutingTable(self, 20, nil)
	c := contactFor(t, "peer-a")
	rt.Add(c)
	c.RTT = 5 * time.Millisecond
	rt.Add(c)
	assert.Equal(t, 1, rt.Count())
}

func TestRoutingTableEvictsDeadOldestWhenBucketFull(t *testing.T) {
	self := NodeID{}
	// Force every contact into one bucket (bucket 15) by giving them all
	// the same highest differing bit relative to self.
	rt := NewRoutingTable(self, 2, func(c Contact) bool { return false })

	// Fixing the top bit of byte 18 pins all three to the same bucket
	// (it's the highest set bit in the XOR distance regardless of
	// byte 19), while byte 19 still distinguishes the three peers.
	var a, b, c NodeID
	a[18], b[18], c[18] = 0x80, 0x80, 0x80
	a[19], b[19], c[19] = 1, 2, 3

	rt.Add(Contact{NodeID: a, Peer: "a", LastSeen: time.Now()})
	rt.Add(Contact{NodeID: b, Peer: "b", LastSeen: time.Now()})
	assert.Equal(t, 2, rt.Count())

	rt.Add(Contact{NodeID: c, Peer: "c", LastSeen: time.Now()})
	assert.Equal(t, 2, rt.Count())
}

func TestRoutingTableRecordFailureAndRemove(t *testing.T) {
	self := IDFromKey("self")
	rt := NewRoutingTable(self, 20, nil)
	c := contactFor(t, "peer-a")
	rt.Add(c)

	rt.RecordFailure(c.NodeID)
	closest := rt.Closest(c.NodeID, 1)
	require.Len(t, closest, 1)
	assert.Equal(t, 1, closest[0].Failures)

	rt.Remove(c.NodeID)
	assert.Equal(t, 0, rt.Count())
}
