// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/post"
)

func TestRatePostAppliesVoteToHeldPost(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	s.Accept(p)

	require.NoError(t, s.RatePost(p.ID, "bob", post.VoteUp, 20))
	assert.Greater(t, p.PosteriorScore(), 0.0)
}

func TestRatePostUnknownPostErrors(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	assert.Error(t, s.RatePost("missing", "bob", post.VoteUp, 20))
}

func TestRatePostInvalidVoteErrors(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	s.Accept(p)
	assert.Error(t, s.RatePost(p.ID, "bob", "sideways", 20))
}
