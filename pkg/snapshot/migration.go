package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vaultcore/stronghold/pkg/engineerr"
)

// legacyPBKDF2Iterations matches the iteration count the legacy format
// used for its password-based key derivation.
const legacyPBKDF2Iterations = 100_000

const legacySaltSize = 16

// loadLegacy reads a version 0x02 0x00 body: salt || nonce || ciphertext
// sealed with AES-256-GCM under a PBKDF2-SHA256-derived key. It exists
// only to support Migrate; Write never emits this format.
func loadLegacy(body, password []byte) (*State, error) {
	if len(body) < legacySaltSize {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	salt, rest := body[:legacySaltSize], body[legacySaltSize:]

	key := pbkdf2.Key(password, salt, legacyPBKDF2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	if len(rest) < gcm.NonceSize() {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	compressed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, engineerr.ErrBadPassword
	}
	serialized, err := decompress(compressed)
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	return deserializeState(serialized)
}

// Migrate reads a legacy snapshot under oldPassword and rewrites it in
// the current format under newPassword at the same path. It is a
// one-shot operation: the caller supplies both passwords and the
// engine never auto-migrates on a plain Load.
func Migrate(path string, oldPassword, newPassword []byte) error {
	state, err := loadLegacyFile(path, oldPassword)
	if err != nil {
		return err
	}
	return Write(path, newPassword, state)
}

func loadLegacyFile(path string, oldPassword []byte) (*State, error) {
	raw, err := readRawFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize || !bytes.Equal(raw[:5], magic[:]) {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	version := [2]byte{raw[5], raw[6]}
	if version != LegacyVersion {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	return loadLegacy(raw[headerSize:], oldPassword)
}
