// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/crypto/vault"
)

func TestSaveAndLoadSecretsRoundTrip(t *testing.T) {
	li := fastLocalIdentity(t, "mallory")
	v := vault.NewMemoryVault()

	require.NoError(t, li.Save(v, "correct horse battery staple"))

	restored, err := LoadSecrets(v, li.Claim, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, li.SignSecret, restored.SignSecret)
	assert.Equal(t, li.EncSecret, restored.EncSecret)
}

func TestLoadSecretsRejectsWrongPassphrase(t *testing.T) {
	li := fastLocalIdentity(t, "oscar")
	v := vault.NewMemoryVault()
	require.NoError(t, li.Save(v, "right-passphrase"))

	_, err := LoadSecrets(v, li.Claim, "wrong-passphrase")
	assert.Error(t, err)
}

func TestPassphraseFromEnvMissing(t *testing.T) {
	_, err := PassphraseFromEnv("EMBER_TEST_UNSET_PASSPHRASE_VAR")
	assert.Error(t, err)
}
