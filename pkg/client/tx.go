package client

import (
	"fmt"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/storage"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// Tx is a handle into a Client's locked state, valid only for the
// duration of the callback passed to WithLock. It exists for the
// procedure runner: a procedure reads several source Locations and
// writes one target Location, and the design requires all of that to
// happen under a single short-lived exclusive lock rather than the
// separate per-call lock Read/Write/Revoke each take on their own.
type Tx struct {
	c *Client
}

// WithLock runs fn with the client's key store and view locked
// exclusively for fn's entire duration.
func (c *Client) WithLock(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Tx{c: c})
}

// Provider returns the client's crypto provider.
func (tx *Tx) Provider() crypto.Provider { return tx.c.provider }

// Resolve derives the (VaultId, RecordId) pair for loc.
func (tx *Tx) Resolve(loc vault.Location) (vault.VaultId, vault.RecordId, error) {
	return tx.c.Resolve(loc)
}

// Read returns the current valid plaintext at loc.
func (tx *Tx) Read(loc vault.Location) ([]byte, error) {
	vid, rid, err := tx.c.Resolve(loc)
	if err != nil {
		return nil, err
	}
	if !tx.c.keys.VaultExists(vid) {
		return nil, engineerr.ErrVaultNotFound
	}
	keyBuf, err := tx.c.keys.GetOrCreate(vid)
	if err != nil {
		return nil, err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return nil, err
	}
	defer guard.Close()

	view, err := tx.c.viewFor(vid, guard.Bytes())
	if err != nil {
		return nil, err
	}
	result := view.PrepareRead(rid)
	switch result.Kind {
	case vault.NoSuchRecord:
		return nil, engineerr.ErrRecordNotFound
	case vault.RecordIsEmpty:
		return nil, engineerr.ErrRecordIsEmpty
	case vault.CacheHit:
		return result.Plaintext, nil
	case vault.CacheMiss:
		rec, err := tx.c.persistRead(vid, storage.KindBlob, result.BlobID.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engineerr.ErrIO, err)
		}
		return view.FinishRead(tx.c.provider, guard.Bytes(), result.BlobID, rec)
	default:
		return nil, fmt.Errorf("client: unknown prepare-read outcome")
	}
}

// Write seals payload under loc's vault key and appends it as a new
// data transaction, creating the vault key on first reference.
func (tx *Tx) Write(loc vault.Location, payload, hint []byte) error {
	vid, rid, err := tx.c.Resolve(loc)
	if err != nil {
		return err
	}
	keyBuf, err := tx.c.keys.GetOrCreate(vid)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrAllocationFailed, err)
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return err
	}
	defer guard.Close()

	view, err := tx.c.viewFor(vid, guard.Bytes())
	if err != nil {
		return err
	}
	w := vault.NewWriter(view, rid, tx.c.provider, guard.Bytes(), &scopedBackend{client: tx.c, vid: vid})
	return w.Write(payload, hint)
}

// Revoke invalidates the current valid record at loc, if any.
func (tx *Tx) Revoke(loc vault.Location) error {
	vid, rid, err := tx.c.Resolve(loc)
	if err != nil {
		return err
	}
	if !tx.c.keys.VaultExists(vid) {
		return nil
	}
	keyBuf, err := tx.c.keys.GetOrCreate(vid)
	if err != nil {
		return err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return err
	}
	defer guard.Close()

	view, err := tx.c.viewFor(vid, guard.Bytes())
	if err != nil {
		return err
	}
	w := vault.NewWriter(view, rid, tx.c.provider, guard.Bytes(), &scopedBackend{client: tx.c, vid: vid})
	return w.Revoke()
}
