// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"encoding/base64"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/post"
	"github.com/ember-net/ember/transport"
)

// RequestPosts asks up to three random active peers for the posts named
// by ids (spec.md §6's request_posts), typically missing thread ancestors
// discovered while rendering a reply whose parent isn't locally held.
func (s *Store) RequestPosts(ids []string) {
	s.mu.RLock()
	peers, tr := s.activePeers, s.tr
	s.mu.RUnlock()
	if peers == nil || tr == nil || len(ids) == 0 {
		return
	}
	candidates := peers()
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	fields := map[string]any{"ids": ids}
	for _, peer := range candidates {
		if peer == s.self {
			continue
		}
		_ = tr.Send(peer, transport.TypeRequestPosts, fields)
	}
}

// HandleRequestPosts answers an inbound "request_posts" with every
// requested post this node currently holds.
func (s *Store) HandleRequestPosts(sender transport.PeerID, msg *transport.Message) {
	rawIDs, _ := msg.Fields["ids"].([]any)
	if len(rawIDs) == 0 {
		return
	}

	encoded := make([]string, 0, len(rawIDs))
	for _, v := range rawIDs {
		id, ok := v.(string)
		if !ok {
			continue
		}
		p, ok := s.Get(id)
		if !ok {
			continue
		}
		raw, err := post.EncodePost(p)
		if err != nil {
			continue
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(raw))
	}
	if len(encoded) == 0 || s.tr == nil {
		return
	}
	_ = s.tr.Send(sender, transport.TypePostsResponse, map[string]any{"posts": encoded})
}

// HandlePostsResponse decodes an inbound "posts_response" and hands each
// post that verifies through the same engine receive path a fresh gossip
// arrival would, so duplicate responses from overlapping requests
// dedupe by id on first-write-wins (spec.md §7: "the exact semantics when
// multiple posts_response messages overlap is unspecified; implementers
// may deduplicate by id and apply first-write-wins").
func (s *Store) HandlePostsResponse(sender transport.PeerID, msg *transport.Message, receive func(p *post.Post)) {
	rawPosts, _ := msg.Fields["posts"].([]any)
	for _, v := range rawPosts {
		str, ok := v.(string)
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			continue
		}
		p, err := post.DecodePost(raw)
		if err != nil {
			logger.Warn("ephemeral: discard malformed posts_response entry", logger.String("peer", string(sender)), logger.Error(err))
			continue
		}
		if s.Has(p.ID) {
			continue
		}
		receive(p)
	}
}

// parentUpdateFields carries {parent_id, reply_id} so a peer holding only
// the parent of a reply created elsewhere learns the reply exists and can
// include it in its own heat accounting, without needing the reply's full
// content.
func parentUpdateFields(parentID, replyID string) map[string]any {
	return map[string]any{"parent_id": parentID, "reply_id": replyID}
}

func (s *Store) broadcastParentUpdate(parentID, replyID string) {
	s.mu.RLock()
	peers := s.activePeers
	s.mu.RUnlock()
	if peers == nil || s.tr == nil {
		return
	}
	fields := parentUpdateFields(parentID, replyID)
	for _, peer := range peers() {
		if peer == s.self {
			continue
		}
		_ = s.tr.Send(peer, transport.TypeParentUpdate, fields)
	}
}

// HandleParentUpdate applies an inbound "parent_update": if this node
// holds the named parent, the reply id is recorded in its Replies set so
// its heat reflects a reply this node never received directly.
func (s *Store) HandleParentUpdate(sender transport.PeerID, msg *transport.Message) {
	parentID, _ := msg.Fields["parent_id"].(string)
	replyID, _ := msg.Fields["reply_id"].(string)
	if parentID == "" || replyID == "" {
		return
	}
	parent, ok := s.Get(parentID)
	if !ok {
		return
	}
	parent.AddReply(replyID)
	s.persist(parent)
}
