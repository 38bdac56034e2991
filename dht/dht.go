// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"context"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// defaultReplicationFactor is how many of the closest peers a STORE is
// fanned out to absent an explicit override (spec.md §4.2).
const defaultReplicationFactor = 3

// identityReplicationFactor overrides the default for identity claims
// (spec.md §4.2, §4.4: replication_factor = 30).
const identityReplicationFactor = 30

// StoreOptions mirrors spec.md §4.2's optional STORE metadata.
type StoreOptions struct {
	Propagate         bool
	Refresh           bool
	ReplicationFactor int
}

// Node is a Kademlia participant: routing table, RPC client, and local
// key/value store wired together over a shared transport.
type Node struct {
	self              NodeID
	k                 int
	alpha             int
	replicationFactor int

	table *RoutingTable
	rpc   *rpcClient
	store *localStore
	tr    *transport.Transport
}

// New constructs a Node. backing persists the local KV table; pass
// memory.NewNullStore() for a stateless relay node.
func New(self NodeID, tr *transport.Transport, backing storage.DHTStore, cfg *config.DHTConfig) *Node {
	k, a, rf := 20, alpha, defaultReplicationFactor
	if cfg != nil {
		if cfg.K > 0 {
			k = cfg.K
		}
		if cfg.Alpha > 0 {
			a = cfg.Alpha
		}
		if cfg.ReplicationFactor > 0 {
			rf = cfg.ReplicationFactor
		}
	}
	n := &Node{self: self, k: k, alpha: a, replicationFactor: rf, store: newLocalStore(backing), tr: tr}
	n.rpc = newRPCClient(tr, self)
	n.table = NewRoutingTable(self, k, n.pingContact)
	return n
}

// pingContact is the RoutingTable's liveness probe.
func (n *Node) pingContact(c Contact) bool {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	_, err := n.rpc.call(ctx, c.Peer, MethodPing, nil)
	return err == nil
}

// Bootstrap registers a known peer as a contact and performs a self-lookup
// to populate the routing table, the standard Kademlia join sequence.
func (n *Node) Bootstrap(ctx context.Context, peer transport.PeerID, addr string) error {
	if _, err := n.rpc.call(ctx, peer, MethodPing, nil); err != nil {
		return err
	}
	n.table.Add(Contact{Peer: peer, Addr: addr, LastSeen: time.Now()})
	_, _, err := n.lookup(ctx, n.self, false)
	return err
}

// FindNode performs an iterative FIND_NODE for target.
func (n *Node) FindNode(ctx context.Context, target NodeID) ([]Contact, error) {
	contacts, _, err := n.lookup(ctx, target, false)
	return contacts, err
}

// Store writes key/value locally then replicates it to the closest
// reachable peers (spec.md §4.2). replicas counts successful remote
// STOREs; the call is considered successful once the local write lands
// even if replicas is 0.
func (n *Node) Store(ctx context.Context, key string, value []byte, opts StoreOptions) (replicas int, err error) {
	id := IDFromKey(key)
	if err := n.store.put(ctx, key, value); err != nil {
		return 0, err
	}
	metrics.DHTStores.WithLabelValues("origin", "accepted").Inc()

	factor := opts.ReplicationFactor
	if factor <= 0 {
		factor = n.replicationFactor
	}

	contacts, _, err := n.lookup(ctx, id, false)
	if err != nil {
		metrics.DHTStores.WithLabelValues("origin", "rejected").Inc()
		return 0, nil
	}
	if len(contacts) > factor {
		contacts = contacts[:factor]
	}

	params := map[string]any{
		"key":   key,
		"value": bytesToB64(value),
	}
	if opts.Propagate {
		params["propagate"] = true
	}
	if opts.Refresh {
		params["refresh"] = true
	}
	if opts.ReplicationFactor > 0 {
		params["replication_factor"] = opts.ReplicationFactor
	}

	for _, c := range contacts {
		_, err := n.rpc.call(ctx, c.Peer, MethodStore, params)
		if err != nil {
			metrics.DHTStores.WithLabelValues("replica", "rejected").Inc()
			continue
		}
		metrics.DHTStores.WithLabelValues("replica", "accepted").Inc()
		replicas++
	}
	if replicas < 3 {
		logger.Warn("dht store under-replicated", logger.String("key", key), logger.Int("replicas", replicas))
	}
	return replicas, nil
}

// Get iteratively searches for key, preferring a local hit.
func (n *Node) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := n.store.get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	id := IDFromKey(key)
	_, value, err := n.lookup(ctx, id, true)
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// HandleMessage processes an inbound dht_rpc frame from peer, routing it
// to the pending-call table (for responses) or a server-side handler (for
// requests). Call this from the node-level message dispatcher for every
// message of type transport.TypeDHTRPC.
func (n *Node) HandleMessage(ctx context.Context, peer transport.PeerID, msg *transport.Message) {
	n.rpc.handleIncoming(peer, msg, func(peer transport.PeerID, req rpcRequestFields) {
		n.table.Add(Contact{Peer: peer, LastSeen: time.Now()})

		var result map[string]any
		switch req.Method {
		case MethodPing:
			result = map[string]any{}
		case MethodFindNode:
			result = n.handleFindNode(req.Params)
		case MethodFindValue:
			result = n.handleFindValue(ctx, req.Params)
		case MethodStore:
			result = n.handleStore(ctx, peer, req.Params)
		default:
			logger.Warn("unknown dht rpc method", logger.String("method", req.Method))
			return
		}
		n.rpc.respond(peer, req.RPCID, result)
	})
}

func (n *Node) handleFindNode(params map[string]any) map[string]any {
	targetHex := asString(params["target"])
	target, err := nodeIDFromHex(targetHex)
	if err != nil {
		return map[string]any{"nodes": []any{}}
	}
	return map[string]any{"nodes": contactsToWire(n.table.Closest(target, n.k))}
}

func (n *Node) handleFindValue(ctx context.Context, params map[string]any) map[string]any {
	key := asString(params["key"])
	if v, ok, err := n.store.get(ctx, key); err == nil && ok {
		return map[string]any{"value": bytesToB64(v)}
	}
	target := IDFromKey(key)
	// lookup sends the hex NodeID of the hashed key, not the key itself.
	if id, err := nodeIDFromHex(key); err == nil {
		target = id
		if entries, err := n.store.backing.LoadDHTEntries(ctx); err == nil {
			for _, e := range entries {
				if IDFromKey(e.Key) == id {
					return map[string]any{"value": bytesToB64(e.Value)}
				}
			}
		}
	}
	return map[string]any{"nodes": contactsToWire(n.table.Closest(target, n.k))}
}

func (n *Node) handleStore(ctx context.Context, peer transport.PeerID, params map[string]any) map[string]any {
	key := asString(params["key"])
	raw := asString(params["value"])
	value, err := b64ToBytes(raw)
	if err != nil {
		return map[string]any{"accepted": false}
	}

	opts := StoreOptions{}
	if f, ok := params["replication_factor"].(float64); ok {
		opts.ReplicationFactor = int(f)
	}

	if err := n.store.putFromPeer(ctx, peer, key, value); err != nil {
		return map[string]any{"accepted": false}
	}
	return map[string]any{"accepted": true}
}

func contactsToWire(contacts []Contact) []any {
	out := make([]any, 0, len(contacts))
	for _, c := range contacts {
		wc := toWireContact(c)
		out = append(out, map[string]any{
			"node_id": wc.NodeID,
			"peer":    wc.Peer,
			"addr":    wc.Addr,
		})
	}
	return out
}

// Count returns the number of contacts currently in the routing table.
func (n *Node) Count() int { return n.table.Count() }

// Self returns this node's own NodeID.
func (n *Node) Self() NodeID { return n.self }

// Seed adds a contact directly to the routing table without a prior RPC
// exchange, for callers (overlay, identity) that learn of a peer's
// node_id through another channel and want it to influence routing
// decisions immediately.
func (n *Node) Seed(c Contact) { n.table.Add(c) }

// LocalClosest returns up to count routing-table contacts closest to
// target using only locally-known state, without performing a network
// lookup. Used by scribe to pick the next routing hop toward a topic's
// rendezvous node (spec.md §4.5: "JOIN(T) along the DHT route").
func (n *Node) LocalClosest(target NodeID, count int) []Contact {
	return n.table.Closest(target, count)
}

// IsClosestKnown reports whether no currently known routing-table
// contact is closer to target than this node itself. A Scribe JOIN
// routed toward target terminates at the first node for which this is
// true — that node is acting as target's rendezvous.
func (n *Node) IsClosestKnown(target NodeID) bool {
	closest := n.table.Closest(target, 1)
	if len(closest) == 0 {
		return true
	}
	return xorDistance(n.self, target).Cmp(xorDistance(closest[0].NodeID, target)) <= 0
}

// IdentityReplicationFactor is exported for the identity package, which
// needs the same override value when it calls Store for a Claim.
func IdentityReplicationFactor() int { return identityReplicationFactor }
