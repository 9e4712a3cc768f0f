package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// StoreEntry is one cached key/value pair from a client's Store, with
// an optional absolute expiry (0 means no TTL).
type StoreEntry struct {
	Value         []byte
	ExpiresAtUnix int64
}

// ClientState is everything a single client needs to resume operation:
// its location-derivation key, its exported vault keys, the sealed
// transactions and blobs that make up its record log, and its Store
// cache. It is the unit Snapshot re-seals under a per-client ephemeral
// key; see snapshot.go.
type ClientState struct {
	IDKey        []byte
	Keys         map[string][]byte // hex(VaultId) -> raw vault key
	Transactions map[string][]byte // hex(txID) -> sealed bytes
	Blobs        map[string][]byte // hex(blobID) -> sealed bytes
	Store        map[string]StoreEntry
}

func newClientState() ClientState {
	return ClientState{
		Keys:         make(map[string][]byte),
		Transactions: make(map[string][]byte),
		Blobs:        make(map[string][]byte),
		Store:        make(map[string]StoreEntry),
	}
}

// State is the full snapshot payload: every client, keyed by the hex
// encoding of its ClientId.
type State struct {
	Clients map[string]ClientState
}

// NewState returns an empty State.
func NewState() *State {
	return &State{Clients: make(map[string]ClientState)}
}

// deserializeState decodes the flat, non-sub-encrypted wire format:
// every map in sorted key order, one ClientState after another. This
// is the legacy (pre-0x03) format, kept only so Migrate can read it;
// the current version instead sub-encrypts each client (sealSnapshot /
// openSnapshot in snapshot.go) before this same per-client codec runs.
func deserializeState(b []byte) (*State, error) {
	r := bytes.NewReader(b)
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	s := NewState()
	for i := uint32(0); i < n; i++ {
		cid, err := readString(r)
		if err != nil {
			return nil, err
		}
		cs, err := readClientState(r)
		if err != nil {
			return nil, err
		}
		s.Clients[cid] = cs
	}
	return s, nil
}

// serializeClientState encodes a single ClientState with the same
// field codec deserializeState reads back, so Snapshot can seal
// one client's bytes independently of the rest.
func serializeClientState(cs ClientState) []byte {
	var buf bytes.Buffer
	writeClientState(&buf, cs)
	return buf.Bytes()
}

func deserializeClientState(b []byte) (ClientState, error) {
	return readClientState(bytes.NewReader(b))
}

func writeClientState(buf *bytes.Buffer, cs ClientState) {
	writeBytes(buf, cs.IDKey)
	writeByteMap(buf, cs.Keys)
	writeByteMap(buf, cs.Transactions)
	writeByteMap(buf, cs.Blobs)

	storeKeys := sortedKeys(cs.Store)
	writeUint32(buf, uint32(len(storeKeys)))
	for _, k := range storeKeys {
		e := cs.Store[k]
		writeString(buf, k)
		writeBytes(buf, e.Value)
		writeUint64(buf, uint64(e.ExpiresAtUnix))
	}
}

func readClientState(r *bytes.Reader) (ClientState, error) {
	cs := newClientState()
	idKey, err := readBytes(r)
	if err != nil {
		return cs, err
	}
	cs.IDKey = idKey

	if cs.Keys, err = readByteMap(r); err != nil {
		return cs, err
	}
	if cs.Transactions, err = readByteMap(r); err != nil {
		return cs, err
	}
	if cs.Blobs, err = readByteMap(r); err != nil {
		return cs, err
	}

	n, err := readUint32(r)
	if err != nil {
		return cs, err
	}
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return cs, err
		}
		v, err := readBytes(r)
		if err != nil {
			return cs, err
		}
		exp, err := readUint64(r)
		if err != nil {
			return cs, err
		}
		cs.Store[k] = StoreEntry{Value: v, ExpiresAtUnix: int64(exp)}
	}
	return cs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeByteMap(buf *bytes.Buffer, m map[string][]byte) {
	keys := sortedKeys(m)
	writeUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		writeString(buf, k)
		writeBytes(buf, m[k])
	}
}

func readByteMap(r *bytes.Reader) (map[string][]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("snapshot: truncated uint32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("snapshot: truncated uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("snapshot: truncated byte field: %w", err)
	}
	return out, nil
}
