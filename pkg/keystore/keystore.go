package keystore

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/guarded"
	"github.com/vaultcore/stronghold/pkg/metrics"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// KeySize is the length in bytes of a VaultKey.
const KeySize = 32

// Strategy selects the guarded memory layout GetOrCreate allocates a
// fresh vault key in.
type Strategy int

const (
	// Direct backs every vault key with one contiguous guarded.Region
	// (guarded.ByteBuffer).
	Direct Strategy = iota
	// Map spreads every vault key across several independently
	// allocated, fragmented regions (guarded.NonContiguousMemory), so
	// no single contiguous range ever holds the whole key.
	Map
)

// KeyStore maps VaultId to guarded key material. No two callers may
// hold the same vault's key checked out simultaneously; Take enforces
// this by marking the key checked out, and Take and GetOrCreate refuse
// it with ErrKeyInUse until it is inserted back.
type KeyStore struct {
	mu       sync.RWMutex
	keys     map[vault.VaultId]guarded.KeyMaterial
	checked  map[vault.VaultId]bool // vaults currently Take()n out
	provider crypto.Provider
	strategy Strategy
}

// New returns an empty key store backed by the given crypto provider,
// allocating every vault key per strategy.
func New(provider crypto.Provider, strategy Strategy) *KeyStore {
	return &KeyStore{
		keys:     make(map[vault.VaultId]guarded.KeyMaterial),
		checked:  make(map[vault.VaultId]bool),
		provider: provider,
		strategy: strategy,
	}
}

// allocate generates fresh random key bytes and wraps them per strategy.
// The caller-visible key bytes are never retained outside guarded memory.
func (k *KeyStore) allocate() (guarded.KeyMaterial, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("keystore: generate vault key: %w", err)
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()
	return wrap(k.strategy, raw)
}

// wrap copies raw into guarded memory laid out per strategy. raw is not
// retained or zeroed by wrap; the caller owns that.
func wrap(strategy Strategy, raw []byte) (guarded.KeyMaterial, error) {
	switch strategy {
	case Map:
		ncm, err := guarded.NewNonContiguousMemory(raw)
		if err != nil {
			return nil, err
		}
		return ncm, nil
	default:
		buf, err := guarded.NewBuffer(raw)
		if err != nil {
			return nil, err
		}
		return guarded.ByteBuffer{Buffer: buf}, nil
	}
}

// WrapDirect wraps externally generated key bytes as KeyMaterial under
// the Direct strategy, for callers (snapshot's per-client sub-
// encryption store) that hold their own keys outside a KeyStore's
// normal allocate-on-GetOrCreate path but still want them in guarded
// memory. raw is not retained or zeroed by WrapDirect.
func WrapDirect(raw []byte) (guarded.KeyMaterial, error) {
	return wrap(Direct, raw)
}

// GetOrCreate returns the vault's key, generating a fresh random one on
// first reference.
func (k *KeyStore) GetOrCreate(id vault.VaultId) (guarded.KeyMaterial, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.checked[id] {
		return nil, engineerr.ErrKeyInUse
	}
	if km, ok := k.keys[id]; ok {
		return km, nil
	}
	km, err := k.allocate()
	if err != nil {
		return nil, err
	}
	k.keys[id] = km
	metrics.VaultsTotal.Inc()
	return km, nil
}

// VaultExists reports whether the store has a key for id.
func (k *KeyStore) VaultExists(id vault.VaultId) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[id]
	return ok
}

// Take checks out and returns id's key for scoped external use. The
// caller must call Insert with the same buffer (even on an error path)
// before any other caller can Take or GetOrCreate that vault's key
// again. Prefer TakeForScope, which makes the re-insert infallible.
func (k *KeyStore) Take(id vault.VaultId) (guarded.KeyMaterial, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.checked[id] {
		return nil, engineerr.ErrKeyInUse
	}
	km, ok := k.keys[id]
	if !ok {
		return nil, engineerr.ErrVaultNotFound
	}
	k.checked[id] = true
	return km, nil
}

// Insert returns a key taken with Take, or inserts a brand new key
// (used by snapshot import).
func (k *KeyStore) Insert(id vault.VaultId, km guarded.KeyMaterial) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[id] = km
	delete(k.checked, id)
}

// TakeForScope runs fn with id's key while holding the store's lock for
// the whole call, so the take and the re-insert form one critical
// section: the key never leaves the map, and no other caller can reach
// the store until fn returns — even if fn panics or returns an error.
// fn must not call back into the same KeyStore.
func (k *KeyStore) TakeForScope(id vault.VaultId, fn func(guarded.KeyMaterial) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.checked[id] {
		return engineerr.ErrKeyInUse
	}
	km, ok := k.keys[id]
	if !ok {
		return engineerr.ErrVaultNotFound
	}
	return fn(km)
}

// Clear releases every key and removes it from the map. Intended for
// Client.Clear() and process teardown.
func (k *KeyStore) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, km := range k.keys {
		km.Release()
		delete(k.keys, id)
		metrics.VaultsTotal.Dec()
	}
	k.checked = make(map[vault.VaultId]bool)
}

// Export copies out every vault key's raw bytes for snapshot
// serialization. The caller owns the returned bytes and must zero them
// once sealed.
func (k *KeyStore) Export() (map[vault.VaultId][]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[vault.VaultId][]byte, len(k.keys))
	for id, km := range k.keys {
		g, err := km.BorrowKey()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, len(g.Bytes()))
		copy(raw, g.Bytes())
		g.Close()
		out[id] = raw
	}
	return out, nil
}

// Import replaces the store's contents with freshly-allocated guarded
// buffers built from raw key bytes (as produced by Export after a
// snapshot load). Any keys already present are released first.
func (k *KeyStore) Import(raw map[vault.VaultId][]byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, km := range k.keys {
		km.Release()
	}
	k.keys = make(map[vault.VaultId]guarded.KeyMaterial, len(raw))
	k.checked = make(map[vault.VaultId]bool)
	for id, b := range raw {
		km, err := wrap(k.strategy, b)
		if err != nil {
			return fmt.Errorf("keystore: import vault key: %w", err)
		}
		k.keys[id] = km
	}
	metrics.VaultsTotal.Set(float64(len(k.keys)))
	return nil
}
