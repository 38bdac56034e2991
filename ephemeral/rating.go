// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"fmt"

	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/post"
)

// RatePost applies a local up/down vote to a held post, the user-facing
// entry point over post.Post.ApplyRating (spec.md §4.7's rating formula).
// Ratings are local bookkeeping only — spec.md's external interface list
// has no rating wire message, so this never leaves the node beyond the
// usual post-record persistence.
func (s *Store) RatePost(postID, voterHandle, vote string, reputation float64) error {
	p, ok := s.Get(postID)
	if !ok {
		return fmt.Errorf("ephemeral: post %s not held", postID)
	}
	if err := p.ApplyRating(voterHandle, vote, reputation); err != nil {
		return err
	}
	s.persist(p)
	metrics.RatingsRecorded.WithLabelValues(ratingPolarity(vote)).Inc()
	return nil
}

func ratingPolarity(vote string) string {
	if vote == post.VoteUp {
		return "positive"
	}
	return "negative"
}
