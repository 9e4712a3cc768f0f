package vault

import (
	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/storage"
)

// PrepareKind enumerates the possible outcomes of PrepareRead.
type PrepareKind int

const (
	// NoSuchRecord means the chain has no init transaction at all.
	NoSuchRecord PrepareKind = iota
	// RecordIsEmpty means the chain has an init but no valid data
	// transaction (revoked, or data was never written).
	RecordIsEmpty
	// CacheHit means the plaintext was already fetched earlier in this
	// View's lifetime and is returned directly.
	CacheHit
	// CacheMiss means the caller must fetch BlobID from storage and
	// call FinishRead to decrypt it.
	CacheMiss
)

// PrepareReadResult is returned by View.PrepareRead.
type PrepareReadResult struct {
	Kind      PrepareKind
	Plaintext []byte // set only for CacheHit
	BlobID    BlobId // set only for CacheMiss
}

// PrepareRead resolves a record id to a plaintext, a blob fetch
// request, or one of the chain's non-existence states. It never
// touches storage itself — see FinishRead for the CacheMiss path.
func (v *View) PrepareRead(id RecordId) PrepareReadResult {
	c, ok := v.chains[id]
	if !ok {
		return PrepareReadResult{Kind: NoSuchRecord}
	}
	if c.valid == nil {
		return PrepareReadResult{Kind: RecordIsEmpty}
	}
	if pt, hit := v.cacheKey(c.valid.BlobId); hit {
		return PrepareReadResult{Kind: CacheHit, Plaintext: pt}
	}
	return PrepareReadResult{Kind: CacheMiss, BlobID: c.valid.BlobId}
}

// FinishRead decrypts the blob fetched in response to a CacheMiss and
// caches the plaintext for the remainder of this View's lifetime.
func (v *View) FinishRead(provider crypto.Provider, vaultKey []byte, blobID BlobId, rec storage.ReadResult) ([]byte, error) {
	plaintext, err := OpenBlob(provider, vaultKey, blobID, rec)
	if err != nil {
		return nil, err
	}
	v.storeInCache(blobID, plaintext)
	return plaintext, nil
}
