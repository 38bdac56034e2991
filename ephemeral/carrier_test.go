// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/transport"
)

func TestToggleCarryAddsThenRemovesLocalHandle(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	s.Accept(p)

	// alice is already an implicit carrier as the author; the first
	// toggle removes her.
	require.NoError(t, s.ToggleCarry(p.ID))
	assert.False(t, p.IsCarrier("alice"))

	require.NoError(t, s.ToggleCarry(p.ID))
	assert.True(t, p.IsCarrier("alice"))
}

func TestToggleCarryUnknownPostErrors(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	assert.Error(t, s.ToggleCarry("missing"))
}

func TestHandleCarrierUpdateAppliesAddAndRemove(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	s.Accept(p)

	msg := &transport.Message{Fields: map[string]any{
		"post_id": p.ID, "handle": "carol", "action": carrierActionAdd,
	}}
	s.HandleCarrierUpdate("peer1", msg)
	assert.True(t, p.IsCarrier("carol"))

	msg2 := &transport.Message{Fields: map[string]any{
		"post_id": p.ID, "handle": "carol", "action": carrierActionRemove,
	}}
	s.HandleCarrierUpdate("peer1", msg2)
	assert.False(t, p.IsCarrier("carol"))
}

func TestHandleCarrierUpdateIgnoresUnknownPost(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	msg := &transport.Message{Fields: map[string]any{
		"post_id": "nope", "handle": "carol", "action": carrierActionAdd,
	}}
	// Must not panic on a post it doesn't hold.
	s.HandleCarrierUpdate("peer1", msg)
}

func TestHandleCarrierUpdateIgnoresMalformedFields(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	s.HandleCarrierUpdate("peer1", &transport.Message{Fields: map[string]any{}})
}
