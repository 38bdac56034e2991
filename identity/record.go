// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/storage"
)

// ToRecord converts a Claim into its storage.IdentityStore persistence
// shape. Secrets are not part of this record — they live in a Vault,
// keyed independently (see Save/LoadSecrets).
func (c *Claim) ToRecord() (*storage.IdentityRecord, error) {
	proof, err := json.Marshal(c.VDFProof)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal vdf proof: %w", err)
	}
	return &storage.IdentityRecord{
		Handle:    c.Handle,
		SignPub:   []byte(c.SignPub),
		EncPub:    c.EncPub,
		VDFInput:  c.VDFInput,
		VDFProof:  proof,
		ClaimedAt: c.ClaimedAt,
		Signature: c.Signature,
	}, nil
}

// ClaimFromRecord rebuilds a Claim from its persisted storage record.
func ClaimFromRecord(rec *storage.IdentityRecord) (*Claim, error) {
	var proof vdf.Proof
	if err := json.Unmarshal(rec.VDFProof, &proof); err != nil {
		return nil, fmt.Errorf("identity: unmarshal vdf proof: %w", err)
	}
	return &Claim{
		Handle:    rec.Handle,
		SignPub:   ed25519.PublicKey(rec.SignPub),
		EncPub:    rec.EncPub,
		VDFInput:  rec.VDFInput,
		VDFProof:  &proof,
		NodeID:    dht.IDFromBytes(rec.SignPub),
		ClaimedAt: rec.ClaimedAt,
		Signature: rec.Signature,
	}, nil
}
