package snapshot

import (
	"bytes"
	cryptorand "crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/keystore"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// clientKeySize is the length of the ephemeral per-client sub-
// encryption key Snapshot generates for every client at seal time.
const clientKeySize = chacha20poly1305.KeySize

// snapshotKeyID maps a client's snapshot map key to the VaultId a
// Snapshot's internal KeyStore indexes its ephemeral key under. It is
// a plain hash, not a real vault identifier: client map keys need not
// be valid hex-encoded vault.ClientId strings, so Snapshot cannot use
// vault.ParseVaultId directly.
func snapshotKeyID(clientKey string) vault.VaultId {
	sum := blake2b.Sum256([]byte(clientKey))
	var id vault.VaultId
	copy(id[:], sum[:len(id)])
	return id
}

// sealedEntry is one client's sub-encrypted bytes as they sit inside
// the outer, password-sealed snapshot body.
type sealedEntry struct {
	nonce      []byte
	ciphertext []byte
}

// Snapshot is a loaded, outer-decrypted snapshot whose individual
// clients remain sealed under their own ephemeral per-client key until
// LoadClient materializes one. Holding the ephemeral keys in a
// keystore.KeyStore rather than a plain map keeps them in guarded
// memory for as long as they live, and Take/Release semantics mean a
// key is consumed exactly once — the moment its client is loaded.
type Snapshot struct {
	keys   *keystore.KeyStore
	sealed map[string]sealedEntry
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		keys:   keystore.New(crypto.NewDefaultProvider(), keystore.Direct),
		sealed: make(map[string]sealedEntry),
	}
}

// ClientIDs returns the hex client ids present in the snapshot without
// decrypting any of them.
func (s *Snapshot) ClientIDs() []string {
	out := make([]string, 0, len(s.sealed))
	for id := range s.sealed {
		out = append(out, id)
	}
	return out
}

// LoadClient decrypts and returns the single client identified by
// hexID, releasing its ephemeral key immediately afterward — the key
// never outlives the one materialization it was generated for.
func (s *Snapshot) LoadClient(hexID string) (*ClientState, error) {
	entry, ok := s.sealed[hexID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown client %q", engineerr.ErrCorruptedSnapshot, hexID)
	}
	km, err := s.keys.Take(snapshotKeyID(hexID))
	if err != nil {
		return nil, fmt.Errorf("snapshot: client key for %q: %w", hexID, err)
	}
	guard, err := km.BorrowKey()
	if err != nil {
		return nil, fmt.Errorf("snapshot: borrow client key for %q: %w", hexID, err)
	}
	key := append([]byte(nil), guard.Bytes()...)
	guard.Close()
	km.Release()
	delete(s.sealed, hexID) // the key was single-use; the client is now consumed

	aead, err := chacha20poly1305.New(key)
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: client aead for %q: %w", hexID, err)
	}
	plain, err := aead.Open(nil, entry.nonce, entry.ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: client %q", engineerr.ErrCorruptedSnapshot, hexID)
	}
	cs, err := deserializeClientState(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: client %q", engineerr.ErrCorruptedSnapshot, hexID)
	}
	return &cs, nil
}

// OpenSnapshot authenticates and decompresses the snapshot at path
// under password, same as Load, but stops short of decrypting any
// client: the returned Snapshot only materializes a client's plaintext
// state when LoadClient is called for it. Callers that only need one
// or two clients out of a large snapshot should prefer this to Load,
// which eagerly decrypts every client.
func OpenSnapshot(path string, password []byte) (*Snapshot, error) {
	raw, err := readRawFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize || !bytes.Equal(raw[:5], magic[:]) {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	version := [2]byte{raw[5], raw[6]}
	if version != CurrentVersion {
		return nil, engineerr.ErrCorruptedSnapshot
	}
	body := raw[headerSize:]

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
	return snap, nil
}

// LoadAll materializes every remaining client in the snapshot,
// consuming each one's ephemeral key as it goes. Engine.Load uses this
// to restore its whole client set in one call; a caller that only
// needs a handful of clients should prefer LoadClient directly so the
// rest are never decrypted at all.
func (s *Snapshot) LoadAll() (*State, error) {
	state := NewState()
	for _, hexID := range s.ClientIDs() {
		cs, err := s.LoadClient(hexID)
		if err != nil {
			return nil, err
		}
		state.Clients[hexID] = *cs
	}
	return state, nil
}

// sealSnapshot re-seals every client in state under a freshly generated
// ephemeral key and returns the bytes that go on to be compressed and
// sealed under the snapshot's master key. Each ephemeral key travels
// alongside its ciphertext in the returned bytes — the outer AEAD seal
// is what actually protects them at rest — but a client's plaintext
// ClientState never exists outside this function except inside
// Snapshot.LoadClient, one client at a time.
func sealSnapshot(state *State) ([]byte, error) {
	ids := sortedKeys(state.Clients)
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(ids)))
	for _, id := range ids {
		plain := serializeClientState(state.Clients[id])

		key := make([]byte, clientKeySize)
		if _, err := cryptorand.Read(key); err != nil {
			return nil, fmt.Errorf("snapshot: generate client key: %w", err)
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("snapshot: client aead: %w", err)
		}
		nonce := make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(cryptorand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("snapshot: client nonce: %w", err)
		}
		sealed := aead.Seal(nil, nonce, plain, nil)

		writeString(&buf, id)
		writeBytes(&buf, key)
		writeBytes(&buf, nonce)
		writeBytes(&buf, sealed)

		for i := range key {
			key[i] = 0
		}
	}
	return buf.Bytes(), nil
}

// openSnapshot parses bytes produced by sealSnapshot into a Snapshot
// with every client still sealed under its own ephemeral key.
func openSnapshot(b []byte) (*Snapshot, error) {
	r := bytes.NewReader(b)
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot()
	for i := uint32(0); i < n; i++ {
		hexID, err := readString(r)
		if err != nil {
			return nil, err
		}
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		nonce, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		ciphertext, err := readBytes(r)
		if err != nil {
			return nil, err
		}

		km, err := keystore.WrapDirect(key)
		for i := range key {
			key[i] = 0
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: wrap client key %q: %w", hexID, err)
		}
		snap.keys.Insert(snapshotKeyID(hexID), km)
		snap.sealed[hexID] = sealedEntry{nonce: nonce, ciphertext: ciphertext}
	}
	return snap, nil
}
