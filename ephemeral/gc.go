// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"context"
	"sort"
	"time"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/post"
)

func (s *Store) gcLoop() {
	ticker := time.NewTicker(GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.collectGarbage()
		}
	}
}

// collectGarbage implements spec.md §4.8's memory-pressure rule: cap
// |posts| <= MAX_POSTS, evicting the lowest-priority posts first.
// Explicit carries (the local handle is itself a carrier) and any post
// retained transitively through a live-carrier descendant reply are
// never evicted.
func (s *Store) collectGarbage() {
	now := time.Now()

	s.mu.RLock()
	over := len(s.posts) - s.maxPosts
	snapshot := make(map[string]*post.Post, len(s.posts))
	for id, p := range s.posts {
		snapshot[id] = p
	}
	s.mu.RUnlock()

	if over <= 0 {
		metrics.PostsHeld.Set(float64(len(snapshot)))
		return
	}

	candidates := make([]*post.Post, 0, len(snapshot))
	for _, p := range snapshot {
		if s.evictable(p, snapshot) {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority(now) < candidates[j].Priority(now)
	})
	if len(candidates) > over {
		candidates = candidates[:over]
	}

	if len(candidates) == 0 {
		return
	}

	s.mu.Lock()
	for _, p := range candidates {
		delete(s.posts, p.ID)
	}
	s.mu.Unlock()

	for _, p := range candidates {
		metrics.PostsEvicted.WithLabelValues("low_priority").Inc()
		if s.db != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.db.DeletePost(ctx, p.ID); err != nil {
				logger.Warn("ephemeral: delete evicted post failed", logger.String("id", p.ID), logger.Error(err))
			}
			cancel()
		}
	}
	metrics.PostsHeld.Set(float64(s.Len()))
}

// evictable reports whether p has no live carrier and no descendant reply
// (transitively) that does, i.e. spec.md §4.8's "a post with no carriers
// and no carried descendant reply becomes a candidate for eviction."
func (s *Store) evictable(p *post.Post, snapshot map[string]*post.Post) bool {
	if p.IsCarrier(s.localKey) {
		return false
	}
	if p.CarrierCount() > 0 {
		return false
	}
	return !hasLiveDescendant(p, snapshot, make(map[string]bool))
}

func hasLiveDescendant(p *post.Post, snapshot map[string]*post.Post, visited map[string]bool) bool {
	if visited[p.ID] {
		return false
	}
	visited[p.ID] = true
	for replyID := range p.RepliesSnapshot() {
		reply, ok := snapshot[replyID]
		if !ok {
			continue
		}
		if reply.CarrierCount() > 0 {
			return true
		}
		if hasLiveDescendant(reply, snapshot, visited) {
			return true
		}
	}
	return false
}
