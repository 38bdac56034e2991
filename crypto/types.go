package crypto

import (
	"crypto"
	"errors"
)

// KeyType represents the type of cryptographic key a KeyPair holds.
type KeyType string

const (
	// KeyTypeEd25519 is the identity signing key (Claim.sign_pub).
	KeyTypeEd25519 KeyType = "Ed25519"
	// KeyTypeX25519 is the identity encryption key (Claim.enc_pub), used
	// for e2e_dm envelope sealing.
	KeyTypeX25519 KeyType = "X25519"
)

// KeyPair represents a cryptographic key pair.
type KeyPair interface {
	// PublicKey returns the public key.
	PublicKey() crypto.PublicKey

	// PrivateKey returns the private key.
	PrivateKey() crypto.PrivateKey

	// Type returns the key type.
	Type() KeyType

	// Sign signs the given message. X25519 keys return ErrSignNotSupported.
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature. X25519 keys return ErrVerifyNotSupported.
	Verify(message, signature []byte) error

	// ID returns a unique identifier for this key pair.
	ID() string
}

// KeyStorage provides secure storage for keys.
type KeyStorage interface {
	Store(id string, keyPair KeyPair) error
	Load(id string) (KeyPair, error)
	Delete(id string) error
	List() ([]string, error)
	Exists(id string) bool
}

// Common errors.
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrInvalidKeyType     = errors.New("invalid key type")
	ErrKeyExists          = errors.New("key already exists")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrSignNotSupported   = errors.New("key type does not support signing")
	ErrVerifyNotSupported = errors.New("key type does not support signature verification")
)
