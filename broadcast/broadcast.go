// SPDX-License-Identifier: LGPL-3.0-or-later

// Package broadcast implements Plumtree (spec.md §4.4): an epidemic
// broadcast tree layered over HyParView's active view, with an
// eager-push set for low-latency delivery and a lazy-push set that
// repairs the tree on demand via IHAVE/GRAFT/PRUNE.
package broadcast

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// Plumtree actions carried in the "plumtree" envelope's "action" field.
const (
	ActionGossip = "GOSSIP"
	ActionIHave  = "IHAVE"
	ActionGraft  = "GRAFT"
	ActionPrune  = "PRUNE"
)

// Timing constants (spec.md §4.4).
const (
	lazyDelay      = 100 * time.Millisecond
	pruneDelay     = 1 * time.Second
	missingTimeout = 3 * time.Second
)

// Deliver is invoked once per first-seen message, with its id and raw
// payload.
type Deliver func(msgID string, payload []byte)

// Tree is one node's Plumtree broadcast state.
type Tree struct {
	self transport.PeerID
	tr   *transport.Transport

	mu    sync.Mutex
	eager map[transport.PeerID]bool
	lazy  map[transport.PeerID]bool

	dedup *seenSet

	graftTimers map[string]*time.Timer

	deliver Deliver
	stop    chan struct{}
}

// New constructs a Tree. deliver is called once per distinct message id
// on first receipt.
func New(self transport.PeerID, tr *transport.Transport, deliver Deliver) *Tree {
	return &Tree{
		self:        self,
		tr:          tr,
		eager:       make(map[transport.PeerID]bool),
		lazy:        make(map[transport.PeerID]bool),
		dedup:       newSeenSet(),
		graftTimers: make(map[string]*time.Timer),
		deliver:     deliver,
		stop:        make(chan struct{}),
	}
}

// Start begins the background dedup-history pruning loop.
func (t *Tree) Start() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.dedup.prune()
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop ends the pruning loop.
func (t *Tree) Stop() { close(t.stop) }

// OnPeerJoinActive is registered as the overlay's OnViewChange callback
// (or called directly): peers entering the active view start eager,
// peers leaving are dropped from both sets.
func (t *Tree) OnPeerJoinActive(peer transport.PeerID, joined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if joined {
		t.eager[peer] = true
		delete(t.lazy, peer)
	} else {
		delete(t.eager, peer)
		delete(t.lazy, peer)
	}
}

// EagerCount reports how many peers are currently eager-push targets,
// used by the post engine to decide whether to fall back to bounded
// epidemic gossip (spec.md §4.7: "active-view size ≤ 2").
func (t *Tree) EagerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.eager)
}

// Broadcast disseminates a new message: eager-push immediately, lazy
// announce after lazyDelay (spec.md §4.4).
func (t *Tree) Broadcast(msgID string, payload []byte) {
	t.dedup.add(msgID, payload)
	t.pushEager(msgID, payload, "")
	time.AfterFunc(lazyDelay, func() { t.announceLazy(msgID, "") })
}

// HandleMessage processes an inbound "plumtree" frame from peer.
func (t *Tree) HandleMessage(peer transport.PeerID, msg *transport.Message) {
	action, _ := msg.Fields["action"].(string)
	metrics.GossipMessagesReceived.WithLabelValues(actionLabel(action)).Inc()

	switch action {
	case ActionGossip:
		t.handleGossip(peer, msg)
	case ActionIHave:
		t.handleIHave(peer, msg)
	case ActionGraft:
		t.handleGraft(peer, msg)
	case ActionPrune:
		t.handlePrune(peer)
	default:
		logger.Warn("unknown plumtree action", logger.String("action", action))
	}
}

func (t *Tree) handleGossip(sender transport.PeerID, msg *transport.Message) {
	id, _ := msg.Fields["id"].(string)
	raw, _ := msg.Fields["payload"].(string)
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || id == "" {
		return
	}

	if t.dedup.has(id) {
		metrics.GossipDuplicatesDropped.Inc()
		t.schedulePrune(id, sender)
		return
	}

	t.dedup.add(id, payload)
	t.cancelGraftTimer(id)

	if t.deliver != nil {
		t.deliver(id, payload)
	}

	t.pushEager(id, payload, sender)
	time.AfterFunc(lazyDelay, func() { t.announceLazy(id, sender) })

	t.mu.Lock()
	wasEager := t.eager[sender]
	t.mu.Unlock()
	if !wasEager && sender != "" && sender != t.self {
		t.graft(sender, "")
	}
}

func (t *Tree) handleIHave(sender transport.PeerID, msg *transport.Message) {
	ids := stringSlice(msg.Fields["ids"])
	for _, id := range ids {
		if t.dedup.has(id) {
			continue
		}
		t.graft(sender, id)
		t.armGraftTimer(id)
	}
}

func (t *Tree) handleGraft(sender transport.PeerID, msg *transport.Message) {
	id, _ := msg.Fields["id"].(string)
	t.mu.Lock()
	t.eager[sender] = true
	delete(t.lazy, sender)
	t.mu.Unlock()
	metrics.GossipTreeRepairs.Inc()

	if payload, ok := t.dedup.get(id); ok {
		_ = t.send(sender, ActionGossip, map[string]any{
			"id":      id,
			"payload": base64.StdEncoding.EncodeToString(payload),
		})
	}
}

func (t *Tree) handlePrune(sender transport.PeerID) {
	t.mu.Lock()
	delete(t.eager, sender)
	t.lazy[sender] = true
	t.mu.Unlock()
}

// schedulePrune asks the sender of a duplicate GOSSIP to stop eager-pushing
// to us, after pruneDelay, provided it's still eager at that time
// (spec.md §4.4).
func (t *Tree) schedulePrune(id string, sender transport.PeerID) {
	if sender == "" || sender == t.self {
		return
	}
	time.AfterFunc(pruneDelay, func() {
		t.mu.Lock()
		stillEager := t.eager[sender]
		t.mu.Unlock()
		if stillEager {
			_ = t.send(sender, ActionPrune, nil)
		}
	})
}

func (t *Tree) graft(peer transport.PeerID, id string) {
	t.mu.Lock()
	t.eager[peer] = true
	delete(t.lazy, peer)
	t.mu.Unlock()
	var fields map[string]any
	if id != "" {
		fields = map[string]any{"id": id}
	}
	_ = t.send(peer, ActionGraft, fields)
}

func (t *Tree) armGraftTimer(id string) {
	t.mu.Lock()
	if _, ok := t.graftTimers[id]; ok {
		t.mu.Unlock()
		return
	}
	timer := time.AfterFunc(missingTimeout, func() {
		t.mu.Lock()
		delete(t.graftTimers, id)
		t.mu.Unlock()
	})
	t.graftTimers[id] = timer
	t.mu.Unlock()
}

func (t *Tree) cancelGraftTimer(id string) {
	t.mu.Lock()
	timer, ok := t.graftTimers[id]
	if ok {
		delete(t.graftTimers, id)
	}
	t.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

func (t *Tree) pushEager(id string, payload []byte, except transport.PeerID) {
	for _, peer := range t.eagerPeers(except) {
		_ = t.send(peer, ActionGossip, map[string]any{
			"id":      id,
			"payload": base64.StdEncoding.EncodeToString(payload),
		})
	}
}

func (t *Tree) announceLazy(id string, except transport.PeerID) {
	for _, peer := range t.lazyPeers(except) {
		_ = t.send(peer, ActionIHave, map[string]any{"ids": []string{id}})
	}
}

func (t *Tree) eagerPeers(except transport.PeerID) []transport.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeerID, 0, len(t.eager))
	for p := range t.eager {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tree) lazyPeers(except transport.PeerID) []transport.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeerID, 0, len(t.lazy))
	for p := range t.lazy {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tree) send(peer transport.PeerID, action string, fields map[string]any) error {
	full := map[string]any{"action": action}
	for k, v := range fields {
		full[k] = v
	}
	return t.tr.Send(peer, transport.TypePlumtree, full)
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func actionLabel(action string) string {
	switch action {
	case ActionGossip:
		return "gossip"
	case ActionIHave:
		return "ihave"
	case ActionGraft:
		return "graft"
	case ActionPrune:
		return "prune"
	default:
		return "unknown"
	}
}
