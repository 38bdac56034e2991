// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalClaimToleratesWrappedPayload(t *testing.T) {
	li := fastLocalIdentity(t, "peggy")
	raw, err := marshalClaim(&li.Claim)
	require.NoError(t, err)

	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": raw})
	require.NoError(t, err)

	claim, err := unmarshalClaim(wrapped)
	require.NoError(t, err)
	assert.Equal(t, li.Handle, claim.Handle)
	assert.Equal(t, b64(li.SignPub), b64(claim.SignPub))
}

func TestUnmarshalPubKeyB64ToleratesWrappedPayload(t *testing.T) {
	raw, err := marshalPubKeyB64("abc123")
	require.NoError(t, err)

	direct, err := unmarshalPubKeyB64(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc123", direct)

	wrapped, err := json.Marshal(map[string]string{"value": "abc123"})
	require.NoError(t, err)
	fromWrapped, err := unmarshalPubKeyB64(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fromWrapped)
}
