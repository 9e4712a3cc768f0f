package crypto

import "fmt"

// SealedSize is the AEAD tag overhead added by Seal, in bytes.
const SealedSize = 16

// ErrAuthFailed is returned by Open when the ciphertext does not
// authenticate under the given key and associated data.
var ErrAuthFailed = fmt.Errorf("crypto: authentication failed")

// Provider is the engine's cryptographic capability surface. Every
// operation that touches key material — vault transactions, snapshot
// bodies, procedure execution — goes through a Provider rather than
// calling crypto/* directly, so the whole engine can be pointed at a
// different backend without touching call sites.
type Provider interface {
	// Random fills buf with cryptographically secure random bytes.
	Random(buf []byte) error

	// Seal encrypts and authenticates plaintext under key, binding
	// associatedData into the authentication tag. key must be exactly
	// KeySize() bytes. The returned ciphertext is the sealed box only;
	// the nonce is not included, so callers store it alongside.
	Seal(key, nonce, plaintext, associatedData []byte) ([]byte, error)

	// Open authenticates and decrypts a value produced by Seal. It
	// returns ErrAuthFailed (never a bare "corrupted" error) when
	// authentication fails, so callers can distinguish a bad password
	// or tampered ciphertext from structural corruption.
	Open(key, nonce, ciphertext, associatedData []byte) ([]byte, error)

	// NonceSize returns the nonce length Seal/Open expect.
	NonceSize() int

	// KeySize returns the symmetric key length Seal/Open expect.
	KeySize() int

	// DeriveKey derives a child key and chain code from a parent seed
	// (or parent chain code) and an index, following a SLIP10-style
	// hierarchical derivation: each level is HMAC-SHA-512(chainCode,
	// parentKey || index). Hardened derivation (index >= 2^31) is the
	// only mode offered, matching ed25519's requirement that every
	// derivation step be hardened.
	DeriveKey(chainCode, parentKey []byte, index uint32) (childKey, childChainCode []byte, err error)

	// Ed25519PublicKey derives the public key for a 32-byte seed.
	Ed25519PublicKey(seed []byte) ([]byte, error)

	// Ed25519Sign signs message with the private key derived from seed.
	Ed25519Sign(seed, message []byte) ([]byte, error)

	// HMAC computes HMAC-SHA-512(key, data).
	HMAC(key, data []byte) ([]byte, error)
}
