// SPDX-License-Identifier: LGPL-3.0-or-later

package keys

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagecrypto "github.com/ember-net/ember/crypto"
)

func TestGenerateEd25519KeyPair(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	assert.Equal(t, sagecrypto.KeyTypeEd25519, kp.Type())
	assert.NotEmpty(t, kp.ID())
	assert.Len(t, kp.PublicKey().(ed25519.PublicKey), ed25519.PublicKeySize)
}

func TestEd25519SignVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("ember claim payload")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, kp.Verify(msg, sig))

	assert.Error(t, kp.Verify([]byte("tampered"), sig))
}

func TestNewEd25519PublicKeyVerifiesOnly(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	pub := NewEd25519PublicKey(kp.PublicKey().(ed25519.PublicKey), "")
	assert.NotEmpty(t, pub.ID())

	msg := []byte("claim bytes")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, pub.Verify(msg, sig))

	_, err = pub.Sign(msg)
	assert.Error(t, err)
}

func TestNewEd25519KeyPairDerivesIDFromPublicKey(t *testing.T) {
	generated, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	rebuilt, err := NewEd25519KeyPair(generated.PrivateKey().(ed25519.PrivateKey), "")
	require.NoError(t, err)
	assert.Equal(t, generated.ID(), rebuilt.ID())
}
