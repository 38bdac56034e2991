// SPDX-License-Identifier: LGPL-3.0-or-later

package post

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/ember-net/ember/broadcast"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/identity"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// smallNetworkThreshold is spec.md §4.7's "active-view size ≤ 2" flood
// fallback trigger.
const smallNetworkThreshold = 2

// SeenFilter is the dedup surface the Ephemeral Store's hierarchical bloom
// filter (spec.md §4.8) provides to the engine's receipt pipeline.
type SeenFilter interface {
	Has(id string) bool
	Add(id string)
}

// Sink is the Ephemeral Store surface the engine hands accepted posts to,
// and consults for parent-depth lookups when creating a reply.
type Sink interface {
	Accept(p *Post)
	Get(id string) (*Post, bool)
}

// Relay is the Privacy Mixer surface (spec.md §4.10) the engine hands a
// freshly created post to instead of disseminating it directly, once
// SetRelay has been called. The mixer re-delivers the same payload back
// into OnTreeDeliver once it fluffs it, origin-obscured.
type Relay interface {
	Relay(payload []byte) error
}

type pendingPost struct {
	post     *Post
	received time.Time
	timer    *time.Timer
	resolved bool
}

// Engine implements the Post Engine of spec.md §4.7: creation/signing,
// Plumtree/flood dissemination, and the inbound receipt pipeline.
type Engine struct {
	self     transport.PeerID
	tr       *transport.Transport
	tree     *broadcast.Tree
	flood    *broadcast.Flood
	registry *identity.Registry
	verifier vdf.Verifier

	seen  SeenFilter
	sink  Sink
	relay Relay

	activePeers func() []transport.PeerID
	reputation  func(handle string) float64

	mu    sync.Mutex
	local *identity.LocalIdentity

	pendingMu sync.Mutex
	pending   map[string]*pendingPost
}

// New constructs an Engine. reputation, when nil, treats every peer's
// reputation as 0 (the minimum attestation weight of 1 still applies).
func New(self transport.PeerID, tr *transport.Transport, tree *broadcast.Tree, flood *broadcast.Flood, registry *identity.Registry, verifier vdf.Verifier, seen SeenFilter, sink Sink, activePeers func() []transport.PeerID, reputation func(handle string) float64) *Engine {
	return &Engine{
		self:        self,
		tr:          tr,
		tree:        tree,
		flood:       flood,
		registry:    registry,
		verifier:    verifier,
		seen:        seen,
		sink:        sink,
		activePeers: activePeers,
		reputation:  reputation,
		pending:     make(map[string]*pendingPost),
	}
}

// SetLocalIdentity attaches the node's own identity, required before
// CreatePost or attestation signing will work.
func (e *Engine) SetLocalIdentity(li *identity.LocalIdentity) {
	e.mu.Lock()
	e.local = li
	e.mu.Unlock()
}

func (e *Engine) localIdentity() *identity.LocalIdentity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// SetRelay attaches a Privacy Mixer to disseminate through (spec.md
// §4.10) in place of going straight to Plumtree/flood. Pass nil to
// disseminate directly, the default.
func (e *Engine) SetRelay(r Relay) {
	e.mu.Lock()
	e.relay = r
	e.mu.Unlock()
}

func (e *Engine) currentRelay() Relay {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.relay
}

// CreatePost builds, signs, and disseminates a new post authored by the
// engine's local identity (spec.md §4.7). vdfProof is an optional per-post
// time-lock, independent of the author's identity-level VDF.
func (e *Engine) CreatePost(ctx context.Context, content, parentID, imageHash string, vdfInput []byte, vdfProof *vdf.Proof) (*Post, error) {
	local := e.localIdentity()
	if local == nil {
		return nil, fmt.Errorf("post: no local identity attached")
	}

	parentDepth := -1
	if parentID != "" {
		parent, ok := e.sink.Get(parentID)
		if !ok {
			return nil, fmt.Errorf("post: parent %s not found", parentID)
		}
		if parent.Depth >= MaxDepth {
			return nil, fmt.Errorf("post: parent %s already at max depth", parentID)
		}
		parentDepth = parent.Depth
	}

	p, err := New(content, parentID, parentDepth, imageHash, local.Handle, local.SignPub, local.SignSecret, vdfInput, vdfProof)
	if err != nil {
		return nil, err
	}

	e.seen.Add(p.ID)
	e.sink.Accept(p)
	e.disseminate(p)
	return p, nil
}

// disseminate implements spec.md §4.7's dissemination rule: Plumtree
// normally, bounded-fanout flood when the active view is too small to have
// a useful broadcast tree. When a Relay is attached (spec.md §4.10), the
// post is handed to it instead, and this station never itself appears as
// the wire-visible origin of the broadcast.
func (e *Engine) disseminate(p *Post) {
	if relay := e.currentRelay(); relay != nil {
		payload, err := marshalPost(p)
		if err != nil {
			logger.Warn("post: marshal for mixer relay failed", logger.String("id", p.ID), logger.Error(err))
			return
		}
		if err := relay.Relay(payload); err != nil {
			logger.Warn("post: mixer relay failed, falling back to direct dissemination", logger.String("id", p.ID), logger.Error(err))
		} else {
			return
		}
	}

	if e.tree != nil && e.tree.EagerCount() > smallNetworkThreshold {
		payload, err := marshalPost(p)
		if err != nil {
			logger.Warn("post: marshal for broadcast failed", logger.String("id", p.ID), logger.Error(err))
			return
		}
		e.tree.Broadcast(p.ID, payload)
		return
	}
	if e.flood != nil {
		e.flood.Seen(p.ID)
		e.flood.ForwardRandom(transport.TypeNewPost, postFields(p), e.self)
	}
}

// OnTreeDeliver is registered as the broadcast.Tree's Deliver callback.
func (e *Engine) OnTreeDeliver(msgID string, payload []byte) {
	p, err := unmarshalPost(payload)
	if err != nil {
		logger.Warn("post: discarding malformed broadcast payload", logger.String("id", msgID), logger.Error(err))
		return
	}
	e.receive(p)
}

// HandleNewPost processes an inbound "new_post" flood message.
func (e *Engine) HandleNewPost(sender transport.PeerID, msg *transport.Message) {
	p, err := postFromFields(msg.Fields)
	if err != nil || p.ID == "" {
		logger.Warn("post: discarding malformed new_post message", logger.Error(err))
		return
	}
	if e.flood != nil {
		if e.flood.Seen(p.ID) {
			return
		}
		e.flood.ForwardRandom(transport.TypeNewPost, msg.Fields, sender)
	}
	e.receive(p)
}

// Receive feeds an already-decoded post into the receipt pipeline, for
// callers that obtained it outside Plumtree/flood dissemination (e.g. the
// Ephemeral Store's posts_response sync path).
func (e *Engine) Receive(p *Post) { e.receive(p) }

// receive runs spec.md §4.7's receipt pipeline steps 1-3; step 4 (handoff
// to the Ephemeral Store) happens in resolve once verification settles.
func (e *Engine) receive(p *Post) {
	if e.seen.Has(p.ID) {
		return
	}

	e.pendingMu.Lock()
	if _, exists := e.pending[p.ID]; exists {
		e.pendingMu.Unlock()
		return
	}
	pp := &pendingPost{post: p, received: time.Now()}
	pp.timer = time.AfterFunc(AttestationTimeout, func() { e.resolve(p.ID) })
	e.pending[p.ID] = pp
	e.pendingMu.Unlock()
}

// HandleAttestation processes an inbound "post_attestation" message,
// spec.md §4.7: validate, then accumulate trust; a post that crosses
// TRUST_THRESHOLD is promoted immediately without waiting out the
// attestation window.
func (e *Engine) HandleAttestation(sender transport.PeerID, msg *transport.Message) {
	a, err := attestationFromFields(msg.Fields)
	if err != nil {
		return
	}
	authenticated := string(sender) == base64.StdEncoding.EncodeToString(a.AttesterPub)

	e.pendingMu.Lock()
	pp, ok := e.pending[a.PostID]
	e.pendingMu.Unlock()
	if !ok {
		return
	}

	if err := pp.post.ApplyAttestation(a, authenticated); err != nil {
		return
	}
	metrics.PostAttestationsApplied.Inc()
	if pp.post.Trusted() {
		e.resolve(a.PostID)
	}
}

// resolve settles a post out of pending_verification: trusted posts are
// accepted outright; others are fully verified (author binding, signature,
// optional per-post VDF) before acceptance (spec.md §4.7).
func (e *Engine) resolve(id string) {
	e.pendingMu.Lock()
	pp, ok := e.pending[id]
	if !ok || pp.resolved {
		e.pendingMu.Unlock()
		return
	}
	pp.resolved = true
	delete(e.pending, id)
	e.pendingMu.Unlock()
	if pp.timer != nil {
		pp.timer.Stop()
	}

	p := pp.post
	if p.Trusted() {
		e.accept(p, true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !VerifySignature(p) {
		e.reject(p.ID, "bad_signature")
		return
	}
	if e.registry != nil && !e.registry.VerifyAuthor(ctx, p.AuthorHandle, p.AuthorPub) {
		e.reject(p.ID, "author_binding_failed")
		return
	}
	if !VerifyVDF(p, e.verifier) {
		e.reject(p.ID, "vdf_failed")
		return
	}
	e.accept(p, false)
}

func (e *Engine) accept(p *Post, viaTrust bool) {
	e.seen.Add(p.ID)
	e.sink.Accept(p)
	metrics.PostsAccepted.WithLabelValues(acceptLabel(viaTrust)).Inc()
	e.emitAttestation(p)
}

func (e *Engine) reject(id, reason string) {
	e.seen.Add(id)
	metrics.PostsRejected.WithLabelValues(reason).Inc()
}

func acceptLabel(viaTrust bool) string {
	if viaTrust {
		return "trusted"
	}
	return "verified"
}

// emitAttestation broadcasts a signed post_attestation once the local node
// has itself independently verified a post, so peers that receive it via a
// different path can accumulate trust faster (spec.md §4.7).
func (e *Engine) emitAttestation(p *Post) {
	local := e.localIdentity()
	if local == nil || e.activePeers == nil || e.tr == nil {
		return
	}
	r := 0.0
	if e.reputation != nil {
		r = e.reputation(local.Handle)
	}
	a, err := SignAttestation(p.ID, local.Handle, local.SignPub, local.SignSecret, r)
	if err != nil {
		logger.Warn("post: sign attestation failed", logger.Error(err))
		return
	}
	fields := attestationFields(a)
	for _, peer := range e.activePeers() {
		_ = e.tr.Send(peer, transport.TypePostAttestation, fields)
	}
}
