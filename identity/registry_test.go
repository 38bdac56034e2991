// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/storage/memory"
	"github.com/ember-net/ember/transport"
)

type testIdentity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testIdentity{pub: pub, priv: priv}
}

func (id *testIdentity) Handle() string             { return "node" }
func (id *testIdentity) SignPub() ed25519.PublicKey { return id.pub }
func (id *testIdentity) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, msg), nil
}

// newTestRegistry wires a Registry to a lone dht.Node (no peers): enough
// to exercise local register/lookup since Node.Get/Store both consult the
// local store before touching the network.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	tr := transport.New(newTestIdentity(t), nil)
	node := dht.New(dht.IDFromKey("solo"), tr, memory.NewStore(), nil)
	return New(node, tr, vdf.New(), nil)
}

// fastLocalIdentity mints a LocalIdentity with a tiny iteration count so
// tests don't pay the real VDF cost.
func fastLocalIdentity(t *testing.T, handle string) *LocalIdentity {
	t.Helper()
	li, err := New(handle, vdf.New(), 2)
	require.NoError(t, err)
	return li
}

func TestClaimSignAndVerifyRoundTrip(t *testing.T) {
	li := fastLocalIdentity(t, "Alice")
	require.NoError(t, Verify(&li.Claim, vdf.New()))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	li := fastLocalIdentity(t, "bob")
	li.Signature[0] ^= 0xFF
	assert.Error(t, Verify(&li.Claim, vdf.New()))
}

func TestVerifyRejectsWrongVDFProof(t *testing.T) {
	li := fastLocalIdentity(t, "carol")
	other := fastLocalIdentity(t, "dave")
	li.VDFProof = other.VDFProof
	require.NoError(t, li.Sign())
	assert.Error(t, Verify(&li.Claim, vdf.New()))
}

func TestRegisterThenLookupRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	li := fastLocalIdentity(t, "eve")

	ctx := context.Background()
	require.NoError(t, r.Register(ctx, li))

	claim, err := r.Lookup(ctx, "EVE")
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, b64(li.SignPub), b64(claim.SignPub))
}

func TestLookupUnknownHandleReturnsNil(t *testing.T) {
	r := newTestRegistry(t)
	claim, err := r.Lookup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestRegisterRejectsHandleTakenByAnotherKey(t *testing.T) {
	r := newTestRegistry(t)
	first := fastLocalIdentity(t, "frank")
	second := fastLocalIdentity(t, "frank")

	ctx := context.Background()
	require.NoError(t, r.Register(ctx, first))
	err := r.Register(ctx, second)
	assert.ErrorIs(t, err, ErrHandleTaken)
}

func TestVerifyAuthorMatchesRegisteredKey(t *testing.T) {
	r := newTestRegistry(t)
	li := fastLocalIdentity(t, "grace")
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, li))

	assert.True(t, r.VerifyAuthor(ctx, "grace", li.SignPub))

	other := fastLocalIdentity(t, "heidi")
	assert.False(t, r.VerifyAuthor(ctx, "grace", other.SignPub))
}

func TestVerifyOwnIdentityAssumesBootstrapWithEmptyRoutingTable(t *testing.T) {
	r := newTestRegistry(t)
	li := fastLocalIdentity(t, "ivan")
	assert.True(t, r.VerifyOwnIdentity(context.Background(), li))
}

func TestUpdatePeerLocationRoundTrips(t *testing.T) {
	r := newTestRegistry(t)
	li := fastLocalIdentity(t, "judy")
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, li))

	require.NoError(t, r.UpdatePeerLocation(ctx, li.Handle, li.NodeID, transport.PeerID("wire-judy")))

	raw, ok, err := r.node.Get(ctx, routingKey(li.Handle))
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := unmarshalRouting(raw)
	require.NoError(t, err)
	assert.Equal(t, transport.PeerID("wire-judy"), rec.WirePeerID)
	assert.False(t, rec.Expired())
}

func TestRoutingRecordExpires(t *testing.T) {
	rec := RoutingRecord{Handle: "judy", Timestamp: time.Now().Add(-10 * time.Minute), TTL: 5 * time.Minute}
	assert.True(t, rec.Expired())
}
