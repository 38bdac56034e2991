// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// verifyOwnBackoffBase and verifyOwnMaxAttempts are spec.md §4.6's
// verify_own_identity retry schedule.
const (
	verifyOwnBackoffBase  = 300 * time.Millisecond
	verifyOwnMaxAttempts  = 5
	routingMaintenanceTTL = 2 * time.Minute
)

func handleToPubKeyKey(handle string) string { return "handle-to-pubkey:" + NormalizeHandle(handle) }
func pubKeyKey(signPubB64 string) string     { return "pubkey:" + signPubB64 }
func routingKey(handle string) string        { return "routing:" + NormalizeHandle(handle) }
func wireToHandleKey(peer transport.PeerID) string {
	return "wire-to-handle:" + string(peer)
}

// ErrHandleTaken is returned by Register when the requested handle
// already resolves to a different public key.
var ErrHandleTaken = fmt.Errorf("identity: handle already registered")

// Registry implements the Identity Registry operations of spec.md §4.6
// over a *dht.Node. It also maintains the caller's own routing record and
// broadcasts routing_update notifications to active peers.
type Registry struct {
	node     *dht.Node
	tr       *transport.Transport
	verifier vdf.Verifier

	activePeers func() []transport.PeerID

	mu         sync.Mutex
	local      *LocalIdentity
	wirePeerID transport.PeerID

	stop chan struct{}
}

// New constructs a Registry. activePeers, when non-nil, is consulted by
// UpdatePeerLocation to broadcast routing_update records (spec.md §4.6);
// pass nil to skip broadcasting (e.g. in tests).
func New(node *dht.Node, tr *transport.Transport, verifier vdf.Verifier, activePeers func() []transport.PeerID) *Registry {
	return &Registry{
		node:        node,
		tr:          tr,
		verifier:    verifier,
		activePeers: activePeers,
		stop:        make(chan struct{}),
	}
}

// Register publishes local's Claim under both DHT keys at
// replication_factor=30, rejecting if the handle is already taken by a
// different sign_pub (spec.md §4.6).
func (r *Registry) Register(ctx context.Context, local *LocalIdentity) error {
	existing, err := r.resolveHandle(ctx, local.Handle)
	if err == nil && existing != "" && existing != b64(local.SignPub) {
		metrics.IdentityRegistrations.WithLabelValues("handle_taken").Inc()
		return ErrHandleTaken
	}

	claimBytes, err := marshalClaim(&local.Claim)
	if err != nil {
		metrics.IdentityRegistrations.WithLabelValues("error").Inc()
		return fmt.Errorf("identity: marshal claim: %w", err)
	}
	opts := dht.StoreOptions{ReplicationFactor: dht.IdentityReplicationFactor()}
	if _, err := r.node.Store(ctx, pubKeyKey(b64(local.SignPub)), claimBytes, opts); err != nil {
		metrics.IdentityRegistrations.WithLabelValues("error").Inc()
		return fmt.Errorf("identity: store claim: %w", err)
	}
	handleVal, err := marshalPubKeyB64(b64(local.SignPub))
	if err != nil {
		metrics.IdentityRegistrations.WithLabelValues("error").Inc()
		return fmt.Errorf("identity: marshal handle mapping: %w", err)
	}
	if _, err := r.node.Store(ctx, handleToPubKeyKey(local.Handle), handleVal, opts); err != nil {
		metrics.IdentityRegistrations.WithLabelValues("error").Inc()
		return fmt.Errorf("identity: store handle mapping: %w", err)
	}

	metrics.IdentityRegistrations.WithLabelValues("accepted").Inc()

	r.mu.Lock()
	r.local = local
	r.mu.Unlock()
	return nil
}

// Lookup resolves handle to its verified Claim, spec.md §4.6: resolve
// handle-to-pubkey, fetch the Claim, verify signature and VDF, return
// none on any verification failure.
func (r *Registry) Lookup(ctx context.Context, handle string) (*Claim, error) {
	pub, err := r.resolveHandle(ctx, handle)
	if err != nil || pub == "" {
		metrics.IdentityLookups.WithLabelValues("not_found").Inc()
		return nil, nil
	}
	raw, ok, err := r.node.Get(ctx, pubKeyKey(pub))
	if err != nil || !ok {
		metrics.IdentityLookups.WithLabelValues("not_found").Inc()
		return nil, nil
	}
	claim, err := unmarshalClaim(raw)
	if err != nil {
		logger.Warn("identity: malformed claim payload", logger.String("handle", handle), logger.Error(err))
		metrics.IdentityLookups.WithLabelValues("verification_failed").Inc()
		return nil, nil
	}
	if err := Verify(claim, r.verifier); err != nil {
		logger.Warn("identity: claim failed verification", logger.String("handle", handle), logger.Error(err))
		metrics.IdentityLookups.WithLabelValues("verification_failed").Inc()
		return nil, nil
	}
	metrics.IdentityLookups.WithLabelValues("found").Inc()
	return claim, nil
}

func (r *Registry) resolveHandle(ctx context.Context, handle string) (string, error) {
	raw, ok, err := r.node.Get(ctx, handleToPubKeyKey(handle))
	if err != nil || !ok {
		return "", err
	}
	return unmarshalPubKeyB64(raw)
}

// VerifyOwnIdentity confirms the node's own Claim is resolvable in the
// DHT, re-publishing and retrying with exponential backoff if it is
// momentarily absent (spec.md §4.6). An empty routing table is treated as
// "still bootstrapping" and reports true without a lookup.
func (r *Registry) VerifyOwnIdentity(ctx context.Context, local *LocalIdentity) bool {
	if r.node.Count() == 0 {
		return true
	}

	backoff := verifyOwnBackoffBase
	for attempt := 0; attempt < verifyOwnMaxAttempts; attempt++ {
		claim, err := r.Lookup(ctx, local.Handle)
		if err == nil && claim != nil && b64(claim.SignPub) == b64(local.SignPub) {
			return true
		}
		if err := Verify(&local.Claim, r.verifier); err != nil {
			return false
		}
		_ = r.Register(ctx, local)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return false
}

// VerifyAuthor implements spec.md §4.6's verify_author(post): the looked
// up Claim for authorHandle must carry the same sign_pub the caller
// claims authored the post.
func (r *Registry) VerifyAuthor(ctx context.Context, authorHandle string, authorPub []byte) bool {
	claim, err := r.Lookup(ctx, authorHandle)
	if err != nil || claim == nil {
		return false
	}
	return b64(claim.SignPub) == b64(authorPub)
}

// UpdatePeerLocation writes the routing:<handle> and wire-to-handle:<peer>
// records at ttl=300s and broadcasts a routing_update to active peers
// (spec.md §4.6).
func (r *Registry) UpdatePeerLocation(ctx context.Context, handle string, nodeID dht.NodeID, wirePeer transport.PeerID) error {
	rec := RoutingRecord{Handle: handle, NodeID: nodeID, WirePeerID: wirePeer, Timestamp: time.Now(), TTL: routingTTL}
	raw, err := marshalRouting(rec)
	if err != nil {
		return fmt.Errorf("identity: marshal routing record: %w", err)
	}
	if _, err := r.node.Store(ctx, routingKey(handle), raw, dht.StoreOptions{}); err != nil {
		return fmt.Errorf("identity: store routing record: %w", err)
	}
	if _, err := r.node.Store(ctx, wireToHandleKey(wirePeer), []byte(NormalizeHandle(handle)), dht.StoreOptions{}); err != nil {
		return fmt.Errorf("identity: store reverse routing record: %w", err)
	}

	metrics.IdentityRoutingUpdates.Inc()

	r.mu.Lock()
	r.wirePeerID = wirePeer
	r.mu.Unlock()

	if r.activePeers == nil || r.tr == nil {
		return nil
	}
	for _, peer := range r.activePeers() {
		_ = r.tr.Send(peer, transport.TypeRoutingUpdate, map[string]any{
			"handle":       NormalizeHandle(handle),
			"node_id":      nodeID.String(),
			"wire_peer_id": string(wirePeer),
		})
	}
	return nil
}

// Start begins the peer-location maintenance loop: refresh every 2
// minutes, or immediately when NotifyPeerIDChanged is called (spec.md
// §4.6: "refreshes routing on peer-id change, on reconnection, or every 2
// minutes").
func (r *Registry) Start(ctx context.Context) {
	go r.maintenanceLoop(ctx)
}

// Stop ends the maintenance loop.
func (r *Registry) Stop() { close(r.stop) }

// NotifyPeerIDChanged triggers an immediate routing refresh, for callers
// that detect a reconnection under a new wire PeerID.
func (r *Registry) NotifyPeerIDChanged(ctx context.Context, wirePeer transport.PeerID) {
	r.mu.Lock()
	local := r.local
	r.mu.Unlock()
	if local == nil {
		return
	}
	_ = r.UpdatePeerLocation(ctx, local.Handle, local.NodeID, wirePeer)
}

func (r *Registry) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(routingMaintenanceTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			local, wirePeer := r.local, r.wirePeerID
			r.mu.Unlock()
			if local == nil {
				continue
			}
			if err := r.UpdatePeerLocation(ctx, local.Handle, local.NodeID, wirePeer); err != nil {
				logger.Warn("identity: routing refresh failed", logger.Error(err))
			}
			r.reapExpired()
		}
	}
}

// reapExpired checks whether this node's own routing record, as the DHT
// returns it, has passed its TTL, and logs a warning if so. It deletes
// nothing: the DHT's local store only exposes Get/Store, so no expired
// routing entry, this node's own or another handle's, is removed here.
func (r *Registry) reapExpired() {
	r.mu.Lock()
	local := r.local
	r.mu.Unlock()
	if local == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, ok, err := r.node.Get(ctx, routingKey(local.Handle))
	if err != nil || !ok {
		return
	}
	rec, err := unmarshalRouting(raw)
	if err != nil || !rec.Expired() {
		return
	}
	logger.Warn("identity: own routing record expired without refresh", logger.String("handle", local.Handle))
}
