// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package vault stores the local identity's secret key material at rest,
// encrypted under a passphrase the operator supplies out of band. It never
// touches the network — only the node's identity setup (node/identity.go,
// through the identity package's Vault interface) reads from it, at
// startup, to unlock the signing and encryption keys spec.md
// §3 requires every node to hold.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

var (
	ErrInvalidPassphrase = errors.New("vault: invalid passphrase")
	ErrKeyNotFound       = errors.New("vault: key not found")
	ErrInvalidKeyID      = errors.New("vault: invalid key id")
)

const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// encryptedBlob is the on-disk (and in-memory) representation of a sealed
// key: an scrypt-derived AES-256-GCM ciphertext over the caller's secret,
// bound to a per-entry salt and nonce.
type encryptedBlob struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func seal(plaintext []byte, passphrase string) (*encryptedBlob, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := gcmFor(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &encryptedBlob{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func open(blob encryptedBlob, passphrase string) ([]byte, error) {
	gcm, err := gcmFor(passphrase, blob.Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

func gcmFor(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// FileVault persists sealed keys as one JSON file per key ID under dir,
// mode 0600, so the operator can back up or rotate the directory without
// a database.
type FileVault struct {
	dir string
	mu  sync.RWMutex
}

// NewFileVault opens (creating if necessary) a file-backed vault at dir.
func NewFileVault(dir string) (*FileVault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileVault{dir: dir}, nil
}

func (v *FileVault) path(keyID string) string {
	return filepath.Join(v.dir, keyID+".json")
}

func (v *FileVault) StoreEncrypted(keyID string, key []byte, passphrase string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	blob, err := seal(key, passphrase)
	if err != nil {
		return err
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return os.WriteFile(v.path(keyID), data, 0600)
}

func (v *FileVault) LoadDecrypted(keyID, passphrase string) ([]byte, error) {
	if keyID == "" {
		return nil, ErrInvalidKeyID
	}
	v.mu.RLock()
	data, err := os.ReadFile(v.path(keyID))
	v.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	var blob encryptedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	return open(blob, passphrase)
}

func (v *FileVault) SetPermissions(keyID string, mode os.FileMode) error {
	if !v.Exists(keyID) {
		return ErrKeyNotFound
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return os.Chmod(v.path(keyID), mode)
}

func (v *FileVault) Delete(keyID string) error {
	if !v.Exists(keyID) {
		return ErrKeyNotFound
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return os.Remove(v.path(keyID))
}

func (v *FileVault) Exists(keyID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, err := os.Stat(v.path(keyID))
	return err == nil
}

func (v *FileVault) ListKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok {
			out = append(out, name)
		}
	}
	return out
}

// MemoryVault keeps sealed keys in process memory only, for tests and the
// stateless relay mode where there is no local identity to persist.
type MemoryVault struct {
	mu    sync.RWMutex
	blobs map[string]encryptedBlob
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[string]encryptedBlob)}
}

func (v *MemoryVault) StoreEncrypted(keyID string, key []byte, passphrase string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	blob, err := seal(key, passphrase)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blobs[keyID] = *blob
	return nil
}

func (v *MemoryVault) LoadDecrypted(keyID, passphrase string) ([]byte, error) {
	if keyID == "" {
		return nil, ErrInvalidKeyID
	}
	v.mu.RLock()
	blob, ok := v.blobs[keyID]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	return open(blob, passphrase)
}

func (v *MemoryVault) SetPermissions(keyID string, _ os.FileMode) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.blobs[keyID]; !ok {
		return ErrKeyNotFound
	}
	return nil
}

func (v *MemoryVault) Delete(keyID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.blobs[keyID]; !ok {
		return ErrKeyNotFound
	}
	delete(v.blobs, keyID)
	return nil
}

func (v *MemoryVault) Exists(keyID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.blobs[keyID]
	return ok
}

func (v *MemoryVault) ListKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.blobs))
	for k := range v.blobs {
		out = append(out, k)
	}
	return out
}
