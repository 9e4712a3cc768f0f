package vault

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/vaultcore/stronghold/pkg/crypto"
)

const idSize = 24

// ClientId, VaultId, RecordId, and BlobId are opaque 24-byte identifiers.
// They are derived by keyed hashing so that the same path always maps
// to the same identifier across reloads, yet reveals nothing about the
// path to an observer of the storage backend.
type ClientId [idSize]byte
type VaultId [idSize]byte
type RecordId [idSize]byte
type BlobId [idSize]byte

// ChainId is an alias for RecordId: the chain identifier and the
// record identifier it projects to are the same 24 bytes.
type ChainId = RecordId

func (id VaultId) String() string  { return hex.EncodeToString(id[:]) }
func (id RecordId) String() string { return hex.EncodeToString(id[:]) }
func (id BlobId) String() string   { return hex.EncodeToString(id[:]) }
func (id ClientId) String() string { return hex.EncodeToString(id[:]) }

func (id VaultId) IsZero() bool {
	var zero VaultId
	return id == zero
}

// ParseVaultId decodes a VaultId from its String() form, as used by
// snapshot export/import round trips.
func ParseVaultId(s string) (VaultId, error) {
	var id VaultId
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != idSize {
		return VaultId{}, fmt.Errorf("vault: malformed vault id %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// Location is the external address of a record: either a Generic path
// pair or a Counter form that addresses the n-th "head" record within
// a vault by an explicit monotonically increasing index.
type Location struct {
	VaultPath  []byte
	RecordPath []byte
	isCounter  bool
	counter    uint64
}

// NewGenericLocation builds a Location from an arbitrary vault path and
// record path.
func NewGenericLocation(vaultPath, recordPath []byte) Location {
	return Location{VaultPath: vaultPath, RecordPath: recordPath}
}

// NewCounterLocation builds a Location whose record path is derived
// from a monotonically increasing counter rather than an arbitrary byte
// string.
func NewCounterLocation(vaultPath []byte, counter uint64) Location {
	return Location{VaultPath: vaultPath, isCounter: true, counter: counter}
}

// IsCounter reports whether the Location uses the counter addressing
// form rather than an arbitrary record path.
func (l Location) IsCounter() bool { return l.isCounter }

// Counter returns the counter index; only meaningful if IsCounter().
func (l Location) Counter() uint64 { return l.counter }

func (l Location) recordPathBytes() []byte {
	if !l.isCounter {
		return l.RecordPath
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l.counter)
	return buf[:]
}

// idKeySize is the length of the per-client keyed-hash key used to
// derive vault and record identifiers.
const idKeySize = 32

// DeriveVaultId derives a vault's identifier from its path under a
// client-owned HMAC key, truncating the HMAC-SHA-512 output to 24
// bytes as specified.
func DeriveVaultId(provider crypto.Provider, idKey, vaultPath []byte) (VaultId, error) {
	if len(idKey) != idKeySize {
		return VaultId{}, fmt.Errorf("vault: id key must be %d bytes, got %d", idKeySize, len(idKey))
	}
	sum, err := provider.HMAC(idKey, append([]byte("vault:"), vaultPath...))
	if err != nil {
		return VaultId{}, fmt.Errorf("vault: derive vault id: %w", err)
	}
	var id VaultId
	copy(id[:], sum[:idSize])
	return id, nil
}

// DeriveRecordId derives a record's chain identifier from its full
// Location (vault path plus record or counter path) under the same
// client id key.
func DeriveRecordId(provider crypto.Provider, idKey []byte, loc Location) (RecordId, error) {
	if len(idKey) != idKeySize {
		return RecordId{}, fmt.Errorf("vault: id key must be %d bytes, got %d", idKeySize, len(idKey))
	}
	data := append([]byte("record:"), loc.VaultPath...)
	data = append(data, 0x00)
	data = append(data, loc.recordPathBytes()...)
	sum, err := provider.HMAC(idKey, data)
	if err != nil {
		return RecordId{}, fmt.Errorf("vault: derive record id: %w", err)
	}
	var id RecordId
	copy(id[:], sum[:idSize])
	return id, nil
}

// Resolve derives both the VaultId and RecordId for a Location in one call.
func Resolve(provider crypto.Provider, idKey []byte, loc Location) (VaultId, RecordId, error) {
	vid, err := DeriveVaultId(provider, idKey, loc.VaultPath)
	if err != nil {
		return VaultId{}, RecordId{}, err
	}
	rid, err := DeriveRecordId(provider, idKey, loc)
	if err != nil {
		return VaultId{}, RecordId{}, err
	}
	return vid, rid, nil
}

func randomID24(provider crypto.Provider) ([idSize]byte, error) {
	var out [idSize]byte
	if err := provider.Random(out[:]); err != nil {
		return out, fmt.Errorf("vault: generate random id: %w", err)
	}
	return out, nil
}
