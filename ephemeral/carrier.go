// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"fmt"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

const (
	carrierActionAdd    = "add"
	carrierActionRemove = "remove"
)

// SetPeerSource attaches the active-peer list carrier_update broadcasts
// fan out to. Left nil, ToggleCarry still updates local state but emits
// nothing over the wire (useful for a disconnected or single-node test).
func (s *Store) SetPeerSource(activePeers func() []transport.PeerID) {
	s.mu.Lock()
	s.activePeers = activePeers
	s.mu.Unlock()
}

// ToggleCarry implements spec.md §4.8's toggle_carry(post_id): the local
// user adds or removes their own handle from postID's carrier set and, on
// success, broadcasts the change so every other holder of the post
// converges on the same carrier set (see spec.md's acceptance scenario:
// "Node B carries P1 -> carrier_update broadcast; every node's P1.carriers
// eventually contains {A, B}").
func (s *Store) ToggleCarry(postID string) error {
	p, ok := s.Get(postID)
	if !ok {
		return fmt.Errorf("ephemeral: post %s not held", postID)
	}

	var action string
	if p.IsCarrier(s.localKey) {
		p.RemoveCarrier(s.localKey)
		action = carrierActionRemove
	} else {
		p.AddCarrier(s.localKey)
		action = carrierActionAdd
	}
	s.persist(p)
	s.broadcastCarrierUpdate(postID, s.localKey, action)
	return nil
}

func (s *Store) broadcastCarrierUpdate(postID, handle, action string) {
	s.mu.RLock()
	peers := s.activePeers
	s.mu.RUnlock()
	if peers == nil || s.tr == nil {
		return
	}
	fields := map[string]any{
		"post_id": postID,
		"handle":  handle,
		"action":  action,
	}
	for _, peer := range peers() {
		if peer == s.self {
			continue
		}
		_ = s.tr.Send(peer, transport.TypeCarrierUpdate, fields)
	}
}

// HandleCarrierUpdate processes an inbound "carrier_update" message,
// applying the remote carrier change and re-forwarding it once so the
// change reaches peers the sender could not directly address (the same
// bounded-fanout re-forward broadcast.Flood uses for new_post).
func (s *Store) HandleCarrierUpdate(sender transport.PeerID, msg *transport.Message) {
	postID, _ := msg.Fields["post_id"].(string)
	handle, _ := msg.Fields["handle"].(string)
	action, _ := msg.Fields["action"].(string)
	if postID == "" || handle == "" {
		logger.Warn("ephemeral: malformed carrier_update", logger.String("peer", string(sender)))
		return
	}

	p, ok := s.Get(postID)
	if !ok {
		// The post itself hasn't arrived yet; the carrier update is
		// dropped rather than buffered, matching spec.md §4.7's
		// "excess/unroutable messages of this kind are dropped silently"
		// discipline for ancillary, non-post traffic.
		return
	}

	switch action {
	case carrierActionAdd:
		if p.IsCarrier(handle) {
			return
		}
		p.AddCarrier(handle)
	case carrierActionRemove:
		if !p.IsCarrier(handle) {
			return
		}
		p.RemoveCarrier(handle)
	default:
		return
	}
	s.persist(p)
	metrics.CarrierUpdatesApplied.Inc()

	s.mu.RLock()
	peers := s.activePeers
	s.mu.RUnlock()
	if peers == nil || s.tr == nil {
		return
	}
	fields := map[string]any{"post_id": postID, "handle": handle, "action": action}
	for _, peer := range peers() {
		if peer == sender || peer == s.self {
			continue
		}
		_ = s.tr.Send(peer, transport.TypeCarrierUpdate, fields)
	}
}
