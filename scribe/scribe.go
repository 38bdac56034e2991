// SPDX-License-Identifier: LGPL-3.0-or-later

// Package scribe implements topic-based multicast trees anchored at a
// per-topic rendezvous node in the DHT (spec.md §4.5).
package scribe

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// Scribe actions carried in the "scribe" envelope's "action" field.
const (
	ActionJoin         = "JOIN"
	ActionJoinAck      = "JOIN_ACK"
	ActionJoinReject   = "JOIN_REJECT"
	ActionLeave        = "LEAVE"
	ActionMulticast    = "MULTICAST"
	ActionHeartbeat    = "HEARTBEAT"
	ActionParentFailed = "PARENT_FAILED"
)

// Deliver is invoked once per first-seen multicast message on a topic
// this node is locally subscribed to.
type Deliver func(topic string, payload []byte)

type topicState struct {
	rendezvous dht.NodeID
	isRoot     bool
	parent     transport.PeerID
	joinTarget transport.PeerID
	pending    bool
	tried      map[transport.PeerID]bool
	waiting    []transport.PeerID
	children   map[transport.PeerID]bool
	subscribed bool
	dedup      *dedupRing
	lastParent time.Time
}

// Scribe is one node's Scribe topic-tree state.
type Scribe struct {
	self        transport.PeerID
	tr          *transport.Transport
	dht         *dht.Node
	maxChildren int
	heartbeat   time.Duration
	repairTO    time.Duration
	maxDedup    int

	mu     sync.Mutex
	topics map[string]*topicState

	deliver Deliver
	stop    chan struct{}
}

// New constructs a Scribe bound to tr, routing JOINs via the DHT node's
// routing table. deliver is called once per distinct message id on a
// subscribed topic.
func New(self transport.PeerID, tr *transport.Transport, node *dht.Node, cfg *config.ScribeConfig, deliver Deliver) *Scribe {
	maxChildren, heartbeat, repairTO, maxDedup := 16, 30*time.Second, 60*time.Second, 1000
	if cfg != nil {
		if cfg.MaxChildren > 0 {
			maxChildren = cfg.MaxChildren
		}
		if cfg.HeartbeatInterval > 0 {
			heartbeat = cfg.HeartbeatInterval
		}
		if cfg.TreeRepairTimeout > 0 {
			repairTO = cfg.TreeRepairTimeout
		}
		if cfg.MaxDedupPerTopic > 0 {
			maxDedup = cfg.MaxDedupPerTopic
		}
	}
	return &Scribe{
		self:        self,
		tr:          tr,
		dht:         node,
		maxChildren: maxChildren,
		heartbeat:   heartbeat,
		repairTO:    repairTO,
		maxDedup:    maxDedup,
		topics:      make(map[string]*topicState),
		deliver:     deliver,
		stop:        make(chan struct{}),
	}
}

// Start begins the heartbeat and tree-repair loops.
func (s *Scribe) Start() {
	go s.heartbeatLoop()
	go s.repairLoop()
}

// Stop ends the background loops.
func (s *Scribe) Stop() { close(s.stop) }

// Topics returns the names of topics this node currently holds state
// for (subscribed directly, or relaying as an intermediate tree node).
func (s *Scribe) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Subscribe joins topic's multicast tree, delivering future messages to
// Deliver.
func (s *Scribe) Subscribe(topic string) {
	s.mu.Lock()
	ts, ok := s.topics[topic]
	if !ok {
		ts = s.newTopicState(topic)
		s.topics[topic] = ts
	}
	ts.subscribed = true
	onTree := ts.isRoot || ts.parent != "" || ts.pending
	s.mu.Unlock()

	if !onTree {
		s.joinUpstream(topic, ts)
	}
	s.updateGauge()
}

// Unsubscribe stops local delivery for topic. If this node has no
// children and is not otherwise anchoring the tree, it leaves upward.
func (s *Scribe) Unsubscribe(topic string) {
	s.mu.Lock()
	ts, ok := s.topics[topic]
	if !ok {
		s.mu.Unlock()
		return
	}
	ts.subscribed = false
	leave := len(ts.children) == 0 && ts.parent != ""
	parent := ts.parent
	if leave {
		ts.parent = ""
		delete(s.topics, topic)
	}
	s.mu.Unlock()

	if leave {
		_ = s.send(parent, ActionLeave, map[string]any{"topic": topic})
	}
	s.updateGauge()
}

// Multicast disseminates a new message on topic to this node's parent
// (if any) and children.
func (s *Scribe) Multicast(topic, msgID string, payload []byte) {
	s.mu.Lock()
	ts := s.topics[topic]
	s.mu.Unlock()
	if ts == nil {
		return
	}
	ts.dedup.add(msgID)
	s.forward(topic, ts, msgID, payload, "")
}

// HandleMessage processes an inbound "scribe" frame from peer.
func (s *Scribe) HandleMessage(peer transport.PeerID, msg *transport.Message) {
	action, _ := msg.Fields["action"].(string)
	topic, _ := msg.Fields["topic"].(string)

	switch action {
	case ActionJoin:
		s.handleJoin(peer, topic)
	case ActionJoinAck:
		s.handleJoinAck(peer, topic)
	case ActionJoinReject:
		s.handleJoinReject(peer, topic)
	case ActionLeave:
		s.handleLeave(peer, topic)
	case ActionMulticast:
		s.handleMulticast(peer, topic, msg)
	case ActionHeartbeat:
		s.handleHeartbeat(peer, topic)
	case ActionParentFailed:
		logger.Warn("scribe parent reported failed upstream", logger.String("topic", topic), logger.String("peer", string(peer)))
	default:
		logger.Warn("unknown scribe action", logger.String("action", action))
	}
}

func (s *Scribe) newTopicState(topic string) *topicState {
	return &topicState{
		rendezvous: dht.IDFromKey(topic),
		tried:      make(map[transport.PeerID]bool),
		children:   make(map[transport.PeerID]bool),
		dedup:      newDedupRing(s.maxDedup),
		lastParent: time.Now(),
	}
}

func (s *Scribe) topicOrCreate(topic string) *topicState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topic]
	if !ok {
		ts = s.newTopicState(topic)
		s.topics[topic] = ts
	}
	return ts
}

// handleJoin: accept sender as a child if we're already on the tree and
// have room, reject if full, or start our own upstream join if we
// aren't on the tree yet (spec.md §4.5).
func (s *Scribe) handleJoin(sender transport.PeerID, topic string) {
	ts := s.topicOrCreate(topic)

	s.mu.Lock()
	onTree := ts.isRoot || ts.parent != ""
	if onTree {
		if len(ts.children) >= s.maxChildren {
			s.mu.Unlock()
			_ = s.send(sender, ActionJoinReject, map[string]any{"topic": topic})
			return
		}
		ts.children[sender] = true
		n := len(ts.children)
		s.mu.Unlock()
		metrics.ScribeTreesJoined.Set(float64(n))
		_ = s.send(sender, ActionJoinAck, map[string]any{"topic": topic})
		return
	}
	alreadyPending := ts.pending
	ts.waiting = append(ts.waiting, sender)
	s.mu.Unlock()

	if !alreadyPending {
		s.joinUpstream(topic, ts)
	}
}

// joinUpstream routes a JOIN toward topic's rendezvous node via the
// DHT's locally-known closest contacts. If no known contact is closer
// to the rendezvous than this node, it becomes the rendezvous/root.
func (s *Scribe) joinUpstream(topic string, ts *topicState) {
	s.mu.Lock()
	if s.dht == nil || s.dht.IsClosestKnown(ts.rendezvous) {
		ts.isRoot = true
		ts.pending = false
		waiting := ts.waiting
		ts.waiting = nil
		s.mu.Unlock()
		s.admitWaiting(topic, ts, waiting)
		return
	}

	candidates := s.dht.LocalClosest(ts.rendezvous, s.maxChildren)
	var next transport.PeerID
	for _, c := range candidates {
		if c.Peer == "" || c.Peer == s.self || ts.tried[c.Peer] {
			continue
		}
		next = c.Peer
		break
	}
	if next == "" {
		// No untried candidate left to route through: fall back to
		// anchoring here rather than dropping the subtree.
		ts.isRoot = true
		ts.pending = false
		waiting := ts.waiting
		ts.waiting = nil
		s.mu.Unlock()
		s.admitWaiting(topic, ts, waiting)
		return
	}
	ts.pending = true
	ts.joinTarget = next
	ts.tried[next] = true
	s.mu.Unlock()

	_ = s.send(next, ActionJoin, map[string]any{"topic": topic})
}

func (s *Scribe) admitWaiting(topic string, ts *topicState, waiting []transport.PeerID) {
	for _, w := range waiting {
		s.mu.Lock()
		if len(ts.children) >= s.maxChildren {
			s.mu.Unlock()
			_ = s.send(w, ActionJoinReject, map[string]any{"topic": topic})
			continue
		}
		ts.children[w] = true
		n := len(ts.children)
		s.mu.Unlock()
		metrics.ScribeTreesJoined.Set(float64(n))
		_ = s.send(w, ActionJoinAck, map[string]any{"topic": topic})
	}
}

func (s *Scribe) handleJoinAck(sender transport.PeerID, topic string) {
	s.mu.Lock()
	ts, ok := s.topics[topic]
	if !ok || ts.joinTarget != sender {
		s.mu.Unlock()
		return
	}
	ts.parent = sender
	ts.pending = false
	ts.lastParent = time.Now()
	waiting := ts.waiting
	ts.waiting = nil
	s.mu.Unlock()

	s.admitWaiting(topic, ts, waiting)
}

func (s *Scribe) handleJoinReject(sender transport.PeerID, topic string) {
	s.mu.Lock()
	ts, ok := s.topics[topic]
	if !ok || ts.joinTarget != sender {
		s.mu.Unlock()
		return
	}
	ts.pending = false
	s.mu.Unlock()
	s.joinUpstream(topic, ts)
}

func (s *Scribe) handleLeave(sender transport.PeerID, topic string) {
	s.mu.Lock()
	ts, ok := s.topics[topic]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(ts.children, sender)
	n := len(ts.children)
	leave := n == 0 && !ts.subscribed && ts.parent != ""
	parent := ts.parent
	if leave {
		ts.parent = ""
		delete(s.topics, topic)
	}
	s.mu.Unlock()
	metrics.ScribeTreesJoined.Set(float64(n))

	if leave {
		_ = s.send(parent, ActionLeave, map[string]any{"topic": topic})
	}
}

func (s *Scribe) handleMulticast(sender transport.PeerID, topic string, msg *transport.Message) {
	id, _ := msg.Fields["id"].(string)
	raw, _ := msg.Fields["payload"].(string)
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || id == "" {
		return
	}

	s.mu.Lock()
	ts, ok := s.topics[topic]
	s.mu.Unlock()
	if !ok {
		return
	}
	if ts.dedup.has(id) {
		return
	}
	ts.dedup.add(id)

	if ts.subscribed && s.deliver != nil {
		s.deliver(topic, payload)
	}
	s.forward(topic, ts, id, payload, sender)
}

func (s *Scribe) forward(topic string, ts *topicState, id string, payload []byte, except transport.PeerID) {
	fields := map[string]any{
		"topic":   topic,
		"id":      id,
		"payload": base64.StdEncoding.EncodeToString(payload),
	}

	s.mu.Lock()
	parent := ts.parent
	children := make([]transport.PeerID, 0, len(ts.children))
	for c := range ts.children {
		children = append(children, c)
	}
	s.mu.Unlock()

	direction := "upstream"
	if parent != "" && parent != except {
		_ = s.send(parent, ActionMulticast, fields)
		metrics.ScribeMulticastMessages.WithLabelValues(direction).Inc()
	}
	direction = "downstream"
	for _, c := range children {
		if c == except {
			continue
		}
		_ = s.send(c, ActionMulticast, fields)
		metrics.ScribeMulticastMessages.WithLabelValues(direction).Inc()
	}
}

func (s *Scribe) handleHeartbeat(sender transport.PeerID, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topic]
	if !ok || ts.parent != sender {
		return
	}
	ts.lastParent = time.Now()
}

func (s *Scribe) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sendHeartbeats()
		case <-s.stop:
			return
		}
	}
}

func (s *Scribe) sendHeartbeats() {
	s.mu.Lock()
	type job struct {
		topic string
		child transport.PeerID
	}
	var jobs []job
	for topic, ts := range s.topics {
		for c := range ts.children {
			jobs = append(jobs, job{topic, c})
		}
	}
	s.mu.Unlock()

	for _, j := range jobs {
		_ = s.send(j.child, ActionHeartbeat, map[string]any{"topic": j.topic})
	}
}

// repairLoop abandons a parent that hasn't heartbeated within repairTO
// and re-subscribes upstream, notifying children the old path failed
// (spec.md §4.5: "abandons its parent and re-subscribes").
func (s *Scribe) repairLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.checkParents()
		case <-s.stop:
			return
		}
	}
}

func (s *Scribe) checkParents() {
	now := time.Now()
	s.mu.Lock()
	type repair struct {
		topic    string
		ts       *topicState
		children []transport.PeerID
	}
	var due []repair
	for topic, ts := range s.topics {
		if ts.isRoot || ts.parent == "" {
			continue
		}
		if now.Sub(ts.lastParent) > s.repairTO {
			children := make([]transport.PeerID, 0, len(ts.children))
			for c := range ts.children {
				children = append(children, c)
			}
			ts.parent = ""
			ts.tried = make(map[transport.PeerID]bool)
			due = append(due, repair{topic, ts, children})
		}
	}
	s.mu.Unlock()

	for _, r := range due {
		for _, c := range r.children {
			_ = s.send(c, ActionParentFailed, map[string]any{"topic": r.topic})
		}
		s.joinUpstream(r.topic, r.ts)
	}
}

func (s *Scribe) send(peer transport.PeerID, action string, fields map[string]any) error {
	full := map[string]any{"action": action}
	for k, v := range fields {
		full[k] = v
	}
	return s.tr.Send(peer, transport.TypeScribe, full)
}

func (s *Scribe) updateGauge() {
	s.mu.Lock()
	n := len(s.topics)
	s.mu.Unlock()
	metrics.ScribeTreesJoined.Set(float64(n))
}
