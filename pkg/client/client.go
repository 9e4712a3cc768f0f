package client

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/keystore"
	"github.com/vaultcore/stronghold/pkg/log"
	"github.com/vaultcore/stronghold/pkg/storage"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// IDKeySize is the length of a client's location-derivation key.
const IDKeySize = 32

// Client bundles one key store, one view per vault, and one Store cache
// under a single composite lock covering the key store and the views
// together — every client operation always takes both locks in
// lockstep, so a single sync.RWMutex is observationally equivalent to
// two independent locks while being simpler to reason about. Store
// operations only ever touch the Store's own internal lock.
type Client struct {
	ID    vault.ClientId
	idKey []byte

	provider crypto.Provider
	backend  storage.Backend

	mu    sync.RWMutex
	keys  *keystore.KeyStore
	views map[vault.VaultId]*vault.View

	Store *Store
}

// New returns a fresh, empty Client using the Direct key-allocation
// strategy. idKey must be IDKeySize bytes; use guarded.Random-backed
// generation and persist it as part of the client's snapshot state so
// Location derivation is stable across reloads.
func New(id vault.ClientId, idKey []byte, provider crypto.Provider, backend storage.Backend) (*Client, error) {
	return NewWithStrategy(id, idKey, provider, backend, keystore.Direct)
}

// NewWithStrategy is New with an explicit vault-key allocation strategy.
func NewWithStrategy(id vault.ClientId, idKey []byte, provider crypto.Provider, backend storage.Backend, strategy keystore.Strategy) (*Client, error) {
	if len(idKey) != IDKeySize {
		return nil, fmt.Errorf("client: id key must be %d bytes, got %d", IDKeySize, len(idKey))
	}
	return &Client{
		ID:       id,
		idKey:    append([]byte(nil), idKey...),
		provider: provider,
		backend:  backend,
		keys:     keystore.New(provider, strategy),
		views:    make(map[vault.VaultId]*vault.View),
		Store:    NewStore(),
	}, nil
}

// Provider returns the client's crypto provider, for use by the
// procedure runner.
func (c *Client) Provider() crypto.Provider { return c.provider }

// IDKey returns the client's location-derivation key.
func (c *Client) IDKey() []byte { return c.idKey }

// Keys returns the client's key store, for use by the procedure runner
// and snapshot export/import.
func (c *Client) Keys() *keystore.KeyStore { return c.keys }

// scopedID namespaces a bare transaction/blob id by vault so one shared
// storage backend can serve every vault in the client without the
// record log itself needing to know about vaults.
func scopedID(vid vault.VaultId, bareID string) string {
	return vid.String() + "/" + bareID
}

func unscopedID(vid vault.VaultId, scoped string) (string, bool) {
	prefix := vid.String() + "/"
	if !strings.HasPrefix(scoped, prefix) {
		return "", false
	}
	return scoped[len(prefix):], true
}

// persistWrite writes req to the backend under a vault-scoped id.
func (c *Client) persistWrite(vid vault.VaultId, req storage.WriteRequest) error {
	req.ID = scopedID(vid, req.ID)
	return c.backend.Write(req)
}

func (c *Client) persistDelete(vid vault.VaultId, req storage.DeleteRequest) error {
	req.ID = scopedID(vid, req.ID)
	return c.backend.Delete(req)
}

func (c *Client) persistRead(vid vault.VaultId, kind storage.Kind, bareID string) (storage.ReadResult, error) {
	rec, err := c.backend.Read(kind, scopedID(vid, bareID))
	if err != nil {
		return storage.ReadResult{}, err
	}
	rec.ID = bareID
	return rec, nil
}

// loadTransactionsFor lists every transaction scoped to vid and returns
// them with their ids unscoped, ready for vault.Load.
func (c *Client) loadTransactionsFor(vid vault.VaultId) ([]storage.ReadResult, error) {
	ids, err := c.backend.List(storage.KindTransaction)
	if err != nil {
		return nil, fmt.Errorf("client: list transactions: %w", err)
	}
	var out []storage.ReadResult
	for _, scoped := range ids {
		bareID, ok := unscopedID(vid, scoped)
		if !ok {
			continue
		}
		rec, err := c.backend.Read(storage.KindTransaction, scoped)
		if err != nil {
			continue
		}
		rec.ID = bareID
		out = append(out, rec)
	}
	return out, nil
}

// viewFor returns the cached View for vid, lazily loading it from
// storage under vaultKey on first reference. Callers must hold c.mu.
func (c *Client) viewFor(vid vault.VaultId, vaultKey []byte) (*vault.View, error) {
	if v, ok := c.views[vid]; ok {
		return v, nil
	}
	txs, err := c.loadTransactionsFor(vid)
	if err != nil {
		return nil, err
	}
	v := vault.Load(c.provider, vaultKey, txs)
	c.views[vid] = v
	return v, nil
}

// loadedView is the self-locking counterpart to viewFor, for read paths
// that otherwise only need a shared lock: it takes a shared lock to
// check the cache, and only escalates to the exclusive lock on a cold
// miss, so concurrent reads of an already-loaded view never contend.
func (c *Client) loadedView(vid vault.VaultId, vaultKey []byte) (*vault.View, error) {
	c.mu.RLock()
	v, ok := c.views[vid]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewFor(vid, vaultKey)
}

// VaultIDFor derives the VaultId for a vault path under this client's
// id key.
func (c *Client) VaultIDFor(vaultPath []byte) (vault.VaultId, error) {
	return vault.DeriveVaultId(c.provider, c.idKey, vaultPath)
}

// Resolve derives both ids for a full Location.
func (c *Client) Resolve(loc vault.Location) (vault.VaultId, vault.RecordId, error) {
	vid, rid, err := vault.Resolve(c.provider, c.idKey, loc)
	if err != nil {
		return vault.VaultId{}, vault.RecordId{}, fmt.Errorf("%w: %v", engineerr.ErrInvalidLocation, err)
	}
	return vid, rid, nil
}

// Vault returns a handle scoped to vaultPath.
func (c *Client) Vault(vaultPath []byte) *VaultHandle {
	return &VaultHandle{client: c, vaultPath: append([]byte(nil), vaultPath...)}
}

// Write seals payload under the vault key for loc's vault, appends it
// as a new data transaction, and persists both the blob and the
// transaction. It creates the vault key on first reference.
func (c *Client) Write(loc vault.Location, payload, hint []byte) error {
	vid, rid, err := c.Resolve(loc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrAllocationFailed, err)
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return err
	}
	defer guard.Close()

	view, err := c.viewFor(vid, guard.Bytes())
	if err != nil {
		return err
	}
	w := vault.NewWriter(view, rid, c.provider, guard.Bytes(), &scopedBackend{client: c, vid: vid})
	return w.Write(payload, hint)
}

// Read returns the current valid plaintext at loc, or
// engineerr.ErrRecordNotFound / engineerr.ErrRecordIsEmpty.
func (c *Client) Read(loc vault.Location) ([]byte, error) {
	vid, rid, err := c.Resolve(loc)
	if err != nil {
		return nil, err
	}

	if !c.keys.VaultExists(vid) {
		return nil, engineerr.ErrVaultNotFound
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return nil, err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return nil, err
	}
	defer guard.Close()

	view, err := c.loadedView(vid, guard.Bytes())
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
		rec, err := c.persistRead(vid, storage.KindBlob, result.BlobID.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engineerr.ErrIO, err)
		}
		return view.FinishRead(c.provider, guard.Bytes(), result.BlobID, rec)
	default:
		return nil, fmt.Errorf("client: unknown prepare-read outcome")
	}
}

// validRecord resolves vid/rid's current valid record counter and hint,
// for use by sync_with's recency comparison. ok is false if there is no
// valid record (or no vault at all).
func (c *Client) validRecord(vid vault.VaultId, rid vault.RecordId) (counter uint64, hint [24]byte, ok bool, err error) {
	if !c.keys.VaultExists(vid) {
		return 0, [24]byte{}, false, nil
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return 0, [24]byte{}, false, err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return 0, [24]byte{}, false, err
	}
	defer guard.Close()

	view, err := c.loadedView(vid, guard.Bytes())
	if err != nil {
		return 0, [24]byte{}, false, err
	}
	cnt, h, found := view.ValidRecord(rid)
	return cnt, h, found, nil
}

// Revoke invalidates the current valid record at loc. It is a no-op if
// there is none.
func (c *Client) Revoke(loc vault.Location) error {
	vid, rid, err := c.Resolve(loc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.keys.VaultExists(vid) {
		return engineerr.ErrVaultNotFound
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return err
	}
	defer guard.Close()

	view, err := c.viewFor(vid, guard.Bytes())
	if err != nil {
		return err
	}
	w := vault.NewWriter(view, rid, c.provider, guard.Bytes(), &scopedBackend{client: c, vid: vid})
	return w.Revoke()
}

// Exists reports whether loc currently has a valid record.
func (c *Client) Exists(loc vault.Location) (bool, error) {
	vid, rid, err := c.Resolve(loc)
	if err != nil {
		return false, err
	}

	if !c.keys.VaultExists(vid) {
		return false, nil
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return false, err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return false, err
	}
	defer guard.Close()

	view, err := c.loadedView(vid, guard.Bytes())
	if err != nil {
		return false, err
	}
	kind := view.PrepareRead(rid).Kind
	return kind == vault.CacheHit || kind == vault.CacheMiss, nil
}

// List enumerates every valid record in vaultPath's vault.
func (c *Client) List(vaultPath []byte) ([]vault.RecordHintPair, error) {
	vid, err := c.VaultIDFor(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrInvalidLocation, err)
	}

	if !c.keys.VaultExists(vid) {
		return nil, nil
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return nil, err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return nil, err
	}
	defer guard.Close()

	view, err := c.loadedView(vid, guard.Bytes())
	if err != nil {
		return nil, err
	}
	return view.List(), nil
}

// GC runs garbage collection for vaultPath's vault and applies the
// resulting deletes to the backend.
func (c *Client) GC(vaultPath []byte) error {
	vid, err := c.VaultIDFor(vaultPath)
	if err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrInvalidLocation, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.keys.VaultExists(vid) {
		return nil
	}
	keyBuf, err := c.keys.GetOrCreate(vid)
	if err != nil {
		return err
	}
	guard, err := keyBuf.BorrowKey()
	if err != nil {
		return err
	}
	defer guard.Close()

	view, err := c.viewFor(vid, guard.Bytes())
	if err != nil {
		return err
	}
	for _, del := range view.GC() {
		if err := c.persistDelete(vid, del); err != nil {
			log.Logger.Warn().Err(err).Str("id", del.ID).Msg("client: gc delete failed")
		}
	}
	return nil
}

// Clear zeroes the key store, drops every cached view, and clears the
// Store cache.
func (c *Client) Clear() {
	c.mu.Lock()
	c.keys.Clear()
	c.views = make(map[vault.VaultId]*vault.View)
	c.mu.Unlock()
	c.Store.Clear()
}

// scopedBackend adapts Client's vault-scoped persistence helpers to the
// storage.Backend interface expected by vault.Writer, so the record log
// package never has to know about vault scoping.
type scopedBackend struct {
	client *Client
	vid    vault.VaultId
}

func (b *scopedBackend) Write(req storage.WriteRequest) error {
	return b.client.persistWrite(b.vid, req)
}
func (b *scopedBackend) Delete(req storage.DeleteRequest) error {
	return b.client.persistDelete(b.vid, req)
}
func (b *scopedBackend) Read(kind storage.Kind, id string) (storage.ReadResult, error) {
	return b.client.persistRead(b.vid, kind, id)
}
func (b *scopedBackend) List(kind storage.Kind) ([]string, error) {
	ids, err := b.client.backend.List(kind)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, scoped := range ids {
		if bare, ok := unscopedID(b.vid, scoped); ok {
			out = append(out, bare)
		}
	}
	return out, nil
}
func (b *scopedBackend) Close() error { return nil }

// VaultHandle is a typed, vault-scoped view over a Client's record log.
type VaultHandle struct {
	client    *Client
	vaultPath []byte
}

// Write writes payload at recordPath with the given hint.
func (h *VaultHandle) Write(recordPath, payload, hint []byte) error {
	return h.client.Write(vault.NewGenericLocation(h.vaultPath, recordPath), payload, hint)
}

// WriteCounter writes payload at the given counter-addressed head.
func (h *VaultHandle) WriteCounter(counter uint64, payload, hint []byte) error {
	return h.client.Write(vault.NewCounterLocation(h.vaultPath, counter), payload, hint)
}

// Read reads the current valid payload at recordPath.
func (h *VaultHandle) Read(recordPath []byte) ([]byte, error) {
	return h.client.Read(vault.NewGenericLocation(h.vaultPath, recordPath))
}

// ReadCounter reads the current valid payload at the given counter head.
func (h *VaultHandle) ReadCounter(counter uint64) ([]byte, error) {
	return h.client.Read(vault.NewCounterLocation(h.vaultPath, counter))
}

// Revoke revokes the record at recordPath.
func (h *VaultHandle) Revoke(recordPath []byte) error {
	return h.client.Revoke(vault.NewGenericLocation(h.vaultPath, recordPath))
}

// RevokeCounter revokes the record at the given counter head.
func (h *VaultHandle) RevokeCounter(counter uint64) error {
	return h.client.Revoke(vault.NewCounterLocation(h.vaultPath, counter))
}

// Exists reports whether recordPath currently holds a valid record.
func (h *VaultHandle) Exists(recordPath []byte) (bool, error) {
	return h.client.Exists(vault.NewGenericLocation(h.vaultPath, recordPath))
}

// List enumerates every valid record in this vault.
func (h *VaultHandle) List() ([]vault.RecordHintPair, error) {
	return h.client.List(h.vaultPath)
}

// GC garbage-collects this vault.
func (h *VaultHandle) GC() error {
	return h.client.GC(h.vaultPath)
}

