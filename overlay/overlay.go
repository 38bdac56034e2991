// SPDX-License-Identifier: LGPL-3.0-or-later

// Package overlay implements HyParView (spec.md §4.3): a bounded-degree
// membership protocol giving every node a small "active" view used for
// eager broadcast and a larger "passive" view used to heal the active
// view on failure.
package overlay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// HyParView actions carried in the "hyparview" envelope's "action" field.
const (
	ActionJoin         = "JOIN"
	ActionForwardJoin  = "FORWARDJOIN"
	ActionNeighbor     = "NEIGHBOR"
	ActionDisconnect   = "DISCONNECT"
	ActionShuffle      = "SHUFFLE"
	ActionShuffleReply = "SHUFFLEREPLY"
)

const (
	priorityLow  = "low"
	priorityHigh = "high"
)

// OnViewChange is called whenever a peer enters or leaves the active
// view, letting the broadcast package keep its eager/lazy push sets in
// sync with HyParView membership.
type OnViewChange func(peer transport.PeerID, joined bool)

type peerEntry struct {
	id   transport.PeerID
	addr string
}

// Overlay is one node's HyParView membership state.
type Overlay struct {
	self transport.PeerID
	tr   *transport.Transport

	activeMax  int
	passiveMax int
	arwl       int
	prwl       int
	shuffleInt time.Duration

	mu      sync.Mutex
	active  map[transport.PeerID]string
	passive map[transport.PeerID]string

	rng *rand.Rand

	onActiveChange OnViewChange

	stop chan struct{}
}

// New constructs an Overlay bound to tr. Call Bootstrap to join via a
// known peer, and Start to begin the periodic shuffle loop.
func New(self transport.PeerID, tr *transport.Transport, cfg *config.OverlayConfig) *Overlay {
	activeMax, passiveMax, arwl, prwl := 5, 30, 6, 3
	shuffleInt := 30 * time.Second
	if cfg != nil {
		if cfg.ActiveViewMaxSize > 0 {
			activeMax = cfg.ActiveViewMaxSize
		}
		if cfg.PassiveViewMaxSize > 0 {
			passiveMax = cfg.PassiveViewMaxSize
		}
		if cfg.ARWL > 0 {
			arwl = cfg.ARWL
		}
		if cfg.PRWL > 0 {
			prwl = cfg.PRWL
		}
		if cfg.ShuffleInterval > 0 {
			shuffleInt = cfg.ShuffleInterval
		}
	}
	return &Overlay{
		self:       self,
		tr:         tr,
		activeMax:  activeMax,
		passiveMax: passiveMax,
		arwl:       arwl,
		prwl:       prwl,
		shuffleInt: shuffleInt,
		active:     make(map[transport.PeerID]string),
		passive:    make(map[transport.PeerID]string),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:       make(chan struct{}),
	}
}

// SetOnActiveChange registers the callback invoked as peers enter/leave
// the active view.
func (o *Overlay) SetOnActiveChange(fn OnViewChange) { o.onActiveChange = fn }

// Start begins the periodic shuffle loop. Call once after Bootstrap.
func (o *Overlay) Start() {
	go o.shuffleLoop()
}

// Stop ends the shuffle loop.
func (o *Overlay) Stop() { close(o.stop) }

// ActivePeers returns a snapshot of the active view.
func (o *Overlay) ActivePeers() []transport.PeerID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]transport.PeerID, 0, len(o.active))
	for p := range o.active {
		out = append(out, p)
	}
	return out
}

// ActiveViewSize returns the current active view size.
func (o *Overlay) ActiveViewSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Bootstrap sends JOIN to a known contact peer to enter the overlay
// (spec.md §4.3: "new node sends JOIN to a bootstrap peer").
func (o *Overlay) Bootstrap(peer transport.PeerID, addr string) error {
	o.addActive(peer, addr)
	return o.send(peer, ActionJoin, nil)
}

// HandleMessage processes an inbound "hyparview" frame from peer.
func (o *Overlay) HandleMessage(peer transport.PeerID, msg *transport.Message) {
	action, _ := msg.Fields["action"].(string)
	switch action {
	case ActionJoin:
		o.handleJoin(peer)
	case ActionForwardJoin:
		o.handleForwardJoin(peer, msg)
	case ActionNeighbor:
		o.handleNeighbor(peer, msg)
	case ActionDisconnect:
		o.handleDisconnect(peer)
	case ActionShuffle:
		o.handleShuffle(peer, msg)
	case ActionShuffleReply:
		o.handleShuffleReply(msg)
	default:
		logger.Warn("unknown hyparview action", logger.String("action", action))
	}
}

// handleJoin: the recipient adds the sender to its active view and
// forwards FORWARDJOIN(ttl=ARWL) to all other active peers (spec.md §4.3).
func (o *Overlay) handleJoin(sender transport.PeerID) {
	o.addActive(sender, "")
	for _, peer := range o.othersInActive(sender) {
		_ = o.send(peer, ActionForwardJoin, map[string]any{
			"origin": string(sender),
			"ttl":    o.arwl,
		})
		metrics.OverlayForwardJoins.Inc()
	}
}

// handleForwardJoin: decrement ttl and forward; at ttl==0 admit the
// originator to the active view (or passive if full) (spec.md §4.3).
func (o *Overlay) handleForwardJoin(sender transport.PeerID, msg *transport.Message) {
	origin, _ := msg.Fields["origin"].(string)
	ttl := intField(msg.Fields["ttl"])
	originPeer := transport.PeerID(origin)
	if originPeer == o.self || originPeer == "" {
		return
	}

	if ttl <= 0 {
		o.mu.Lock()
		full := len(o.active) >= o.activeMax
		o.mu.Unlock()
		if full {
			o.addPassive(originPeer, "")
		} else {
			o.addActive(originPeer, "")
		}
		return
	}

	forwardTo := o.randomActiveExcept(sender, originPeer)
	if forwardTo == "" {
		o.addActive(originPeer, "")
		return
	}
	_ = o.send(forwardTo, ActionForwardJoin, map[string]any{
		"origin": origin,
		"ttl":    ttl - 1,
	})
	metrics.OverlayForwardJoins.Inc()
}

// handleNeighbor: accept or reject a NEIGHBOR request depending on
// active-view capacity and the requested priority (spec.md §4.3).
func (o *Overlay) handleNeighbor(sender transport.PeerID, msg *transport.Message) {
	priority, _ := msg.Fields["priority"].(string)
	o.mu.Lock()
	full := len(o.active) >= o.activeMax
	o.mu.Unlock()
	if full && priority != priorityHigh {
		return
	}
	o.addActive(sender, "")
}

func (o *Overlay) handleDisconnect(sender transport.PeerID) {
	o.removeActive(sender)
	o.addPassive(sender, "")
}

// addActive admits peer to the active view, evicting a random existing
// member (demoted to passive) if the view is already full (spec.md §4.3).
func (o *Overlay) addActive(peer transport.PeerID, addr string) {
	if peer == o.self || peer == "" {
		return
	}
	o.mu.Lock()
	if _, ok := o.active[peer]; ok {
		o.mu.Unlock()
		return
	}
	var evicted transport.PeerID
	if len(o.active) >= o.activeMax {
		evicted = o.randomActiveLocked("")
		if evicted != "" {
			delete(o.active, evicted)
		}
	}
	o.active[peer] = addr
	delete(o.passive, peer)
	size := len(o.active)
	o.mu.Unlock()

	metrics.OverlayActiveViewSize.Set(float64(size))
	if evicted != "" {
		metrics.OverlayActiveViewEvictions.Inc()
		_ = o.send(evicted, ActionDisconnect, nil)
		o.addPassive(evicted, "")
		if o.onActiveChange != nil {
			o.onActiveChange(evicted, false)
		}
	}
	if o.onActiveChange != nil {
		o.onActiveChange(peer, true)
	}
}

func (o *Overlay) removeActive(peer transport.PeerID) {
	o.mu.Lock()
	_, existed := o.active[peer]
	delete(o.active, peer)
	size := len(o.active)
	o.mu.Unlock()
	metrics.OverlayActiveViewSize.Set(float64(size))
	if existed && o.onActiveChange != nil {
		o.onActiveChange(peer, false)
	}
}

func (o *Overlay) addPassive(peer transport.PeerID, addr string) {
	if peer == o.self || peer == "" {
		return
	}
	o.mu.Lock()
	defer func() {
		metrics.OverlayPassiveViewSize.Set(float64(len(o.passive)))
		o.mu.Unlock()
	}()
	if _, ok := o.active[peer]; ok {
		return
	}
	if len(o.passive) >= o.passiveMax {
		for k := range o.passive {
			delete(o.passive, k)
			break
		}
	}
	o.passive[peer] = addr
}

// RepairFailure is called when a peer in the active view is detected
// dead: it's removed, and NEIGHBOR(high) is sent to the passive peers in
// random order until one send succeeds (spec.md §4.3 "failure repair").
// No reply is awaited: a peer that rejects the request is not followed by
// the next candidate, and the priority is never lowered.
func (o *Overlay) RepairFailure(dead transport.PeerID) {
	o.removeActive(dead)

	o.mu.Lock()
	candidates := make([]transport.PeerID, 0, len(o.passive))
	for p := range o.passive {
		candidates = append(candidates, p)
	}
	o.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	o.mu.Unlock()

	for _, p := range candidates {
		if err := o.send(p, ActionNeighbor, map[string]any{"priority": priorityHigh}); err == nil {
			return
		}
	}
}

func (o *Overlay) othersInActive(except transport.PeerID) []transport.PeerID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]transport.PeerID, 0, len(o.active))
	for p := range o.active {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

func (o *Overlay) randomActiveExcept(exclude ...transport.PeerID) transport.PeerID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.randomActiveLocked(exclude...)
}

func (o *Overlay) randomActiveLocked(exclude ...transport.PeerID) transport.PeerID {
	skip := make(map[transport.PeerID]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	candidates := make([]transport.PeerID, 0, len(o.active))
	for p := range o.active {
		if !skip[p] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}

func (o *Overlay) send(peer transport.PeerID, action string, fields map[string]any) error {
	full := map[string]any{"action": action}
	for k, v := range fields {
		full[k] = v
	}
	return o.tr.Send(peer, transport.TypeHyParView, full)
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
