// SPDX-License-Identifier: LGPL-3.0-or-later

// Package ephemeral implements the Ephemeral Store of spec.md §4.8: the
// bounded, priority-ordered post map the Post Engine hands accepted posts
// to, carrier bookkeeping, and the hierarchical seen-message filter the
// engine's receipt pipeline dedups against.
package ephemeral

import (
	"context"
	"sync"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/post"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// GCInterval is spec.md §4.8's GARBAGE_COLLECT_INTERVAL.
const GCInterval = 60 * time.Second

// defaultMaxPosts mirrors spec.md §4.8's MAX_POSTS for a deployment that
// supplies no config.EphemeralConfig override.
const defaultMaxPosts = 1000

// Store is the Ephemeral Store: a bounded, priority-ordered post map plus
// the hierarchical seen-filter, satisfying post.Sink and post.SeenFilter
// so the Post Engine can be constructed against it directly.
type Store struct {
	self     transport.PeerID
	tr       *transport.Transport
	localKey string // local carrier handle
	maxPosts int
	db       storage.PostStore

	mu          sync.RWMutex
	posts       map[string]*post.Post
	activePeers func() []transport.PeerID
	onImage     func(imageHash string)

	seen *seenFilter

	stop chan struct{}
}

// New constructs a Store. localHandle is the handle used to mark and
// recognize the local user's own carries. db may be nil (ephemeral-only,
// no restart persistence — e.g. a stateless relay node per spec.md §6).
func New(self transport.PeerID, tr *transport.Transport, localHandle string, cfg *config.EphemeralConfig, db storage.PostStore) *Store {
	maxPosts := defaultMaxPosts
	fpRate := 0.01
	if cfg != nil {
		if cfg.MaxPosts > 0 {
			maxPosts = cfg.MaxPosts
		}
		if cfg.SeenFilterFPRate > 0 {
			fpRate = cfg.SeenFilterFPRate
		}
	}
	return &Store{
		self:     self,
		tr:       tr,
		localKey: localHandle,
		maxPosts: maxPosts,
		db:       db,
		posts:    make(map[string]*post.Post),
		seen:     newSeenFilter(fpRate),
		stop:     make(chan struct{}),
	}
}

// Start loads any persisted posts and begins the garbage-collection loop.
func (s *Store) Start(ctx context.Context) {
	s.loadFromDB(ctx)
	go s.gcLoop()
}

// Stop ends the garbage-collection loop.
func (s *Store) Stop() { close(s.stop) }

// Accept implements post.Sink: it is the Post Engine's sole write path
// into the store (spec.md §5: "the post map is updated only by the Post
// Engine and the Ephemeral Store").
func (s *Store) Accept(p *post.Post) {
	s.mu.Lock()
	_, already := s.posts[p.ID]
	s.posts[p.ID] = p
	s.mu.Unlock()
	s.persist(p)
	if already {
		return
	}
	metrics.PostsCreated.Inc()
	metrics.PostsHeld.Set(float64(s.Len()))

	if p.ParentID != "" {
		if parent, ok := s.Get(p.ParentID); ok {
			parent.AddReply(p.ID)
			s.persist(parent)
		}
		s.broadcastParentUpdate(p.ParentID, p.ID)
	}

	if p.ImageHash != "" {
		s.mu.RLock()
		hook := s.onImage
		s.mu.RUnlock()
		if hook != nil {
			hook(p.ImageHash)
		}
	}
}

// SetImageHook attaches the callback invoked with a post's image_hash
// whenever a newly-accepted post references one (spec.md §4.9: "on
// encountering a post with image_hash H whose chunks are not all local,
// request ... from a small random sample of active peers"). Typically
// wired to an image.Store's Ensure so thread rendering can promote the
// post once the image finishes assembling.
func (s *Store) SetImageHook(hook func(imageHash string)) {
	s.mu.Lock()
	s.onImage = hook
	s.mu.Unlock()
}

// Get implements post.Sink.
func (s *Store) Get(id string) (*post.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	return p, ok
}

// Has implements post.SeenFilter.
func (s *Store) Has(id string) bool { return s.seen.has(id) }

// Add implements post.SeenFilter.
func (s *Store) Add(id string) { s.seen.add(id) }

// Len reports how many posts are currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// All returns a snapshot slice of every held post, for iteration by
// callers (thread rendering, eviction scans).
func (s *Store) All() []*post.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	return out
}

func (s *Store) persist(p *post.Post) {
	if s.db == nil {
		return
	}
	rec, err := p.ToRecord()
	if err != nil {
		logger.Warn("ephemeral: encode post record failed", logger.String("id", p.ID), logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.SavePost(ctx, rec); err != nil {
		logger.Warn("ephemeral: persist post failed", logger.String("id", p.ID), logger.Error(err))
	}
}

func (s *Store) loadFromDB(ctx context.Context) {
	if s.db == nil {
		return
	}
	recs, err := s.db.LoadPosts(ctx)
	if err != nil {
		logger.Warn("ephemeral: load posts failed", logger.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		p, err := post.FromRecord(rec)
		if err != nil {
			logger.Warn("ephemeral: decode post record failed", logger.String("id", rec.ID), logger.Error(err))
			continue
		}
		s.posts[p.ID] = p
		s.seen.add(p.ID)
	}
}
