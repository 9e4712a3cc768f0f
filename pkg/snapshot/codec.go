package snapshot

import (
	"bytes"
	cryptorand "crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/log"
	"github.com/vaultcore/stronghold/pkg/metrics"
)

var magic = [5]byte{0x50, 0x41, 0x52, 0x54, 0x49} // "PARTI"

// CurrentVersion is the version this codec writes.
var CurrentVersion = [2]byte{0x03, 0x00}

// LegacyVersion is recognized for reading and migration only.
var LegacyVersion = [2]byte{0x02, 0x00}

const headerSize = 7 // 5-byte magic + 2-byte version

// deriveMasterKey derives the current format's 32-byte master key from
// a password with Blake2b-256.
func deriveMasterKey(password []byte) ([]byte, error) {
	sum := blake2b.Sum256(password)
	return sum[:], nil
}

// Write serializes state, compresses it, seals it under a password-
// derived key, and atomically replaces the file at path. Atomicity is
// achieved by writing to a sibling temp file, syncing, then renaming
// over the destination — a failure before rename leaves any existing
// snapshot untouched.
func Write(path string, password []byte, state *State) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.SnapshotWritesTotal.WithLabelValues(outcome).Inc()
		timer.ObserveDuration(metrics.SnapshotWriteDuration)
	}()

	serialized, err := sealSnapshot(state)
	if err != nil {
		return fmt.Errorf("snapshot: seal clients: %w", err)
	}
	compressed, err := compress(serialized)
	if err != nil {
		return fmt.Errorf("snapshot: compress: %w", engineerr.ErrIO)
	}

	masterKey, err := deriveMasterKey(password)
	if err != nil {
		return fmt.Errorf("snapshot: derive master key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return fmt.Errorf("snapshot: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(cryptorand.Reader, nonce); err != nil {
		return fmt.Errorf("snapshot: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, compressed, nil)

	body := make([]byte, 0, headerSize+len(nonce)+len(sealed))
	body = append(body, magic[:]...)
	body = append(body, CurrentVersion[:]...)
	body = append(body, nonce...)
	body = append(body, sealed...)

	if err := atomicWrite(path, body); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrIO, err)
	}

	metrics.SnapshotBytesWritten.Set(float64(len(body)))
	log.Logger.Info().Str("path", path).Int("bytes", len(body)).Msg("snapshot: wrote")
	return nil
}

// Load reads, authenticates, decompresses, and deserializes the
// snapshot at path. Any failure distinguishes a bad password
// (engineerr.ErrBadPassword) from structural corruption
// (engineerr.ErrCorruptedSnapshot); neither reveals the other.
func Load(path string, password []byte) (state *State, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.SnapshotLoadsTotal.WithLabelValues(outcome).Inc()
	}()

	raw, err := readRawFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	if !bytes.Equal(raw[:5], magic[:]) {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	version := [2]byte{raw[5], raw[6]}
	body := raw[headerSize:]

	switch version {
	case CurrentVersion:
		return loadCurrent(body, password)
	case LegacyVersion:
		return loadLegacy(body, password)
	default:
		return nil, engineerr.ErrCorruptedSnapshot
	}
}

func loadCurrent(body, password []byte) (*State, error) {
	masterKey, err := deriveMasterKey(password)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive master key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new aead: %w", err)
	}
	nonceSize := aead.NonceSize()
	if len(body) < nonceSize {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	nonce, sealed := body[:nonceSize], body[nonceSize:]

	compressed, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, engineerr.ErrBadPassword
	}

	serialized, err := decompress(compressed)
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}

	snap, err := openSnapshot(serialized)
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	state, err := snap.LoadAll()
	if err != nil {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	return state, nil
}

func readRawFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrIO, err)
	}
	return raw, nil
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// atomicWrite writes data to a sibling temp file under dir(path), syncs
// it, then renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
