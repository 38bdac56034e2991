// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/crypto/vault"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/identity"
	"github.com/ember-net/ember/storage"
)

// transportIdentity adapts an identity.LocalIdentity — whose Handle and
// SignPub are plain Claim fields — to transport.LocalIdentity, the
// narrow method-based interface the transport package's auth handshake
// depends on.
type transportIdentity struct {
	li *identity.LocalIdentity
}

func (a transportIdentity) Handle() string             { return a.li.Handle }
func (a transportIdentity) SignPub() ed25519.PublicKey { return a.li.SignPub }
func (a transportIdentity) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(a.li.SignSecret, message), nil
}

// LoadOrCreateIdentity recovers the node's own identity from store and the
// vault rooted at cfg.Path, minting a fresh one when none is stored and
// cfg.CreateIfMissing allows it (spec.md §4.6's claim-and-bind flow).
func LoadOrCreateIdentity(ctx context.Context, cfg *config.IdentityConfig, store storage.Store, prover vdf.Prover) (*identity.LocalIdentity, error) {
	v, err := vault.NewFileVault(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("node: open vault: %w", err)
	}
	passphrase, err := identity.PassphraseFromEnv(cfg.PassphraseEnv)
	if err != nil {
		return nil, err
	}

	if rec, loadErr := store.LoadIdentity(ctx); loadErr == nil {
		claim, err := identity.ClaimFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("node: decode stored identity: %w", err)
		}
		local, err := identity.LoadSecrets(v, *claim, passphrase)
		if err != nil {
			return nil, fmt.Errorf("node: recover identity secrets: %w", err)
		}
		return local, nil
	}

	if !cfg.CreateIfMissing {
		return nil, fmt.Errorf("node: no identity stored and identity.create_if_missing is false")
	}
	if cfg.Handle == "" {
		return nil, fmt.Errorf("node: identity.handle must be set to mint a new identity")
	}

	local, err := identity.New(cfg.Handle, prover, cfg.VDFIterations)
	if err != nil {
		return nil, fmt.Errorf("node: mint identity: %w", err)
	}
	if err := local.Save(v, passphrase); err != nil {
		return nil, fmt.Errorf("node: seal identity secrets: %w", err)
	}
	rec, err := local.Claim.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("node: encode identity record: %w", err)
	}
	if err := store.SaveIdentity(ctx, rec); err != nil {
		return nil, fmt.Errorf("node: persist identity: %w", err)
	}
	return local, nil
}
