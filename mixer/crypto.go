// SPDX-License-Identifier: LGPL-3.0-or-later

package mixer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// relayInfo is the HKDF context string binding derived keys to the
// mixer's use, distinct from any other HKDF use of the same topic bytes
// elsewhere in the codebase.
const relayInfo = "ember-mixer-relay-v1"

// relayKey derives the symmetric key every subscriber of topic uses to
// seal and open relay-topic envelopes. Deriving it from the topic name
// rather than a separately distributed secret means the key offers no
// confidentiality against another node that also subscribes to the
// topic (anyone who knows the topic name can derive the same key) — it
// only obscures message content from a passive observer of raw wire
// bytes, matching spec.md §4.10's framing of the mixer as a
// source-obscuring relay rather than an end-to-end confidentiality
// mechanism (see DESIGN.md).
func relayKey(topic string) [32]byte {
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(topic), nil, []byte(relayInfo))
	_, _ = io.ReadFull(r, key[:])
	return key
}

// seal encrypts plaintext with AES-256-GCM under key, prefixing the
// random nonce to the ciphertext.
func seal(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("mixer: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("mixer: new gcm: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("mixer: generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func open(key [32]byte, envelope []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("mixer: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("mixer: new gcm: %w", err)
	}
	if len(envelope) < aead.NonceSize() {
		return nil, fmt.Errorf("mixer: envelope too short")
	}
	nonce := envelope[:aead.NonceSize()]
	ciphertext := envelope[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("mixer: open: %w", err)
	}
	return pt, nil
}
