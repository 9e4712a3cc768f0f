package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// hardenedBit marks a SLIP10 derivation index as hardened. Ed25519 only
// supports hardened derivation (there is no public-key tweak that works
// for it), so DefaultProvider always derives as if this bit were set.
const hardenedBit = uint32(1) << 31

// DefaultProvider is the engine's built-in Provider: XChaCha20-Poly1305
// for sealing, HMAC-SHA-512 for hierarchical key derivation and for the
// Hmac procedure, and stdlib Ed25519 for signing. It requires no
// configuration and is the Provider NewEngine always wires in; NewEngine
// takes no Provider argument.
type DefaultProvider struct{}

// NewDefaultProvider returns the engine's default cryptographic provider.
func NewDefaultProvider() *DefaultProvider { return &DefaultProvider{} }

func (DefaultProvider) Random(buf []byte) error {
	_, err := rand.Read(buf)
	if err != nil {
		return fmt.Errorf("crypto: random: %w", err)
	}
	return nil
}

func (DefaultProvider) NonceSize() int { return chacha20poly1305.NonceSizeX }
func (DefaultProvider) KeySize() int   { return chacha20poly1305.KeySize }

func (DefaultProvider) Seal(key, nonce, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, associatedData), nil
}

func (DefaultProvider) Open(key, nonce, ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// DeriveKey implements a SLIP10-style hardened derivation step:
// I = HMAC-SHA512(chainCode, 0x00 || parentKey || ser32(index | hardenedBit))
// childKey = I[:32], childChainCode = I[32:].
func (DefaultProvider) DeriveKey(chainCode, parentKey []byte, index uint32) ([]byte, []byte, error) {
	if len(chainCode) == 0 {
		return nil, nil, fmt.Errorf("crypto: derive key: empty chain code")
	}
	data := make([]byte, 0, 1+len(parentKey)+4)
	data = append(data, 0x00)
	data = append(data, parentKey...)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], index|hardenedBit)
	data = append(data, idxBuf[:]...)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	childKey := make([]byte, 32)
	childChainCode := make([]byte, 32)
	copy(childKey, sum[:32])
	copy(childChainCode, sum[32:])
	return childKey, childChainCode, nil
}

func (DefaultProvider) Ed25519PublicKey(seed []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto: ed25519 public key derivation failed")
	}
	return []byte(pub), nil
}

func (DefaultProvider) Ed25519Sign(seed, message []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, message), nil
}

func (DefaultProvider) HMAC(key, data []byte) ([]byte, error) {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}
