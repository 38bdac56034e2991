// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ember-net/ember/crypto/keys"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/internal/metrics"
)

// Vault is the subset of crypto/vault's FileVault/MemoryVault surface this
// package needs to seal a LocalIdentity's secrets at rest. Both concrete
// vault types satisfy it without modification.
type Vault interface {
	StoreEncrypted(keyID string, key []byte, passphrase string) error
	LoadDecrypted(keyID, passphrase string) ([]byte, error)
	Exists(keyID string) bool
	Delete(keyID string) error
}

const vaultKeyPrefix = "ember-identity-"

func vaultKey(handle string) string { return vaultKeyPrefix + NormalizeHandle(handle) }

// secretPayload is the plaintext this package asks Vault to seal; the
// owner's signing and encryption private keys together, since both are
// needed to reconstruct a usable LocalIdentity.
type secretPayload struct {
	SignSecret []byte
	EncSecret  []byte
}

// New mints a fresh LocalIdentity for handle: generates signing and
// encryption keypairs, computes the VDF proof binding them to handle, and
// signs the resulting Claim. iterations controls how expensive minting
// is — spec.md treats the VDF purely as an external compute/verify
// collaborator, so the cost knob lives here, not in that package.
func New(handle string, prover vdf.Prover, iterations uint64) (*LocalIdentity, error) {
	signKP, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate signing key: %w", err)
	}
	encKP, err := keys.GenerateX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate encryption key: %w", err)
	}

	signPub, ok := signKP.PublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected signing public key type %T", signKP.PublicKey())
	}
	signPriv, ok := signKP.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected signing private key type %T", signKP.PrivateKey())
	}
	encPub, ok := encKP.PublicKey().(*ecdh.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected encryption public key type %T", encKP.PublicKey())
	}
	encPriv, ok := encKP.PrivateKey().(*ecdh.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: unexpected encryption private key type %T", encKP.PrivateKey())
	}

	vdfInput := DeriveVDFInput(handle, signPub)
	start := time.Now()
	proof, err := prover.Compute(vdfInput, iterations)
	metrics.VDFComputeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("identity: compute vdf proof: %w", err)
	}

	claim := Claim{
		Handle:    handle,
		SignPub:   signPub,
		EncPub:    encPub.Bytes(),
		VDFInput:  vdfInput,
		VDFProof:  proof,
		NodeID:    dht.IDFromBytes(signPub),
		ClaimedAt: time.Now(),
	}
	li := &LocalIdentity{Claim: claim, SignSecret: signPriv, EncSecret: encPriv.Bytes()}
	if err := li.Sign(); err != nil {
		return nil, err
	}
	return li, nil
}

// Save seals li's secrets into v under a key derived from li.Handle.
func (li *LocalIdentity) Save(v Vault, passphrase string) error {
	payload, err := json.Marshal(secretPayload{SignSecret: li.SignSecret, EncSecret: li.EncSecret})
	if err != nil {
		return fmt.Errorf("identity: marshal secrets: %w", err)
	}
	return v.StoreEncrypted(vaultKey(li.Handle), payload, passphrase)
}

// LoadSecrets recovers a LocalIdentity's private keys from v, pairing them
// with a Claim already loaded from durable storage (the Claim itself is
// public and does not need sealing).
func LoadSecrets(v Vault, claim Claim, passphrase string) (*LocalIdentity, error) {
	raw, err := v.LoadDecrypted(vaultKey(claim.Handle), passphrase)
	if err != nil {
		return nil, fmt.Errorf("identity: load sealed secrets: %w", err)
	}
	var payload secretPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("identity: unmarshal secrets: %w", err)
	}
	return &LocalIdentity{
		Claim:      claim,
		SignSecret: ed25519.PrivateKey(payload.SignSecret),
		EncSecret:  payload.EncSecret,
	}, nil
}

// PassphraseFromEnv reads the vault passphrase from the environment
// variable named by envVar, the only place config.IdentityConfig allows
// it to come from.
func PassphraseFromEnv(envVar string) (string, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return "", fmt.Errorf("identity: passphrase environment variable %q is unset", envVar)
	}
	return v, nil
}
