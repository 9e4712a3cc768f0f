package client

import (
	"fmt"
	"time"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/keystore"
	"github.com/vaultcore/stronghold/pkg/snapshot"
	"github.com/vaultcore/stronghold/pkg/storage"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// ExportState captures everything needed to reconstruct this client
// after a reload: its id key, every vault key, every sealed transaction
// and blob currently in its backend, and its Store cache. Vault keys
// are copied out of guarded memory only for the duration of this call.
func (c *Client) ExportState() (*snapshot.ClientState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rawKeys, err := c.keys.Export()
	if err != nil {
		return nil, fmt.Errorf("client: export keys: %w", err)
	}
	keys := make(map[string][]byte, len(rawKeys))
	for vid, raw := range rawKeys {
		keys[vid.String()] = raw
	}

	transactions, err := c.exportKind(storage.KindTransaction)
	if err != nil {
		return nil, err
	}
	blobs, err := c.exportKind(storage.KindBlob)
	if err != nil {
		return nil, err
	}

	c.Store.mu.RLock()
	now := time.Now()
	store := make(map[string]snapshot.StoreEntry, len(c.Store.entries))
	for k, e := range c.Store.entries {
		if e.expired(now) {
			continue
		}
		entry := snapshot.StoreEntry{Value: append([]byte(nil), e.value...)}
		if e.hasTTL {
			entry.ExpiresAtUnix = e.expires.Unix()
		}
		store[k] = entry
	}
	c.Store.mu.RUnlock()

	return &snapshot.ClientState{
		IDKey:        append([]byte(nil), c.idKey...),
		Keys:         keys,
		Transactions: transactions,
		Blobs:        blobs,
		Store:        store,
	}, nil
}

func (c *Client) exportKind(kind storage.Kind) (map[string][]byte, error) {
	ids, err := c.backend.List(kind)
	if err != nil {
		return nil, fmt.Errorf("client: list %s: %w", kind, err)
	}
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		rec, err := c.backend.Read(kind, id)
		if err != nil {
			continue
		}
		out[id] = rec.Bytes
	}
	return out, nil
}

// Restore rebuilds a Client from snapshot state, writing every sealed
// transaction and blob into backend (a fresh, empty backend is
// expected — e.g. a new storage.MemStore per engine session) and
// importing every vault key and Store entry. strategy selects the
// guarded memory layout imported vault keys are re-wrapped in; it need
// not match whatever strategy originally created the client.
func Restore(id vault.ClientId, cs *snapshot.ClientState, provider crypto.Provider, backend storage.Backend, strategy keystore.Strategy) (*Client, error) {
	c, err := NewWithStrategy(id, cs.IDKey, provider, backend, strategy)
	if err != nil {
		return nil, fmt.Errorf("client: restore: %w", err)
	}

	for scopedID, bytes := range cs.Transactions {
		if err := backend.Write(storage.WriteRequest{Kind: storage.KindTransaction, ID: scopedID, Bytes: bytes}); err != nil {
			return nil, fmt.Errorf("client: restore transaction %s: %w", scopedID, err)
		}
	}
	for scopedID, bytes := range cs.Blobs {
		if err := backend.Write(storage.WriteRequest{Kind: storage.KindBlob, ID: scopedID, Bytes: bytes}); err != nil {
			return nil, fmt.Errorf("client: restore blob %s: %w", scopedID, err)
		}
	}

	rawKeys := make(map[vault.VaultId][]byte, len(cs.Keys))
	for hexID, raw := range cs.Keys {
		vid, err := vault.ParseVaultId(hexID)
		if err != nil {
			return nil, fmt.Errorf("client: restore keys: %w", err)
		}
		rawKeys[vid] = raw
	}
	if err := c.keys.Import(rawKeys); err != nil {
		return nil, fmt.Errorf("client: restore keys: %w", err)
	}

	for k, entry := range cs.Store {
		if entry.ExpiresAtUnix == 0 {
			c.Store.Insert(k, entry.Value, nil)
			continue
		}
		ttl := time.Until(time.Unix(entry.ExpiresAtUnix, 0))
		if ttl <= 0 {
			continue // already expired; drop rather than resurrect
		}
		c.Store.Insert(k, entry.Value, &ttl)
	}

	return c, nil
}
