package stronghold

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vaultcore/stronghold/pkg/client"
	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/keystore"
	"github.com/vaultcore/stronghold/pkg/log"
	"github.com/vaultcore/stronghold/pkg/snapshot"
	"github.com/vaultcore/stronghold/pkg/storage"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// AllocatorStrategy selects how every vault key the engine's clients
// hold is laid out in guarded memory. Direct backs each key with one
// contiguous mmap'd region (pkg/guarded.Buffer); Map spreads each key
// across several independently allocated, fragmented regions
// (pkg/guarded.NonContiguousMemory) so no single contiguous range ever
// holds the whole plaintext. CreateClient and Load translate this into
// the matching pkg/keystore.Strategy when they build a client's key
// store.
type AllocatorStrategy int

const (
	AllocatorDirect AllocatorStrategy = iota
	AllocatorMap
)

// keystoreStrategy translates the engine's public AllocatorStrategy
// into pkg/keystore's own Strategy type. The two types are kept
// distinct to avoid an import cycle: stronghold imports client which
// imports keystore, so keystore cannot import stronghold.
func (cfg EngineConfig) keystoreStrategy() keystore.Strategy {
	if cfg.AllocatorStrategy == AllocatorMap {
		return keystore.Map
	}
	return keystore.Direct
}

// EngineConfig is the engine's only configuration surface: there are no
// process-wide environment variables, everything enters through
// explicit constructor arguments.
type EngineConfig struct {
	SnapshotDirectory     string
	AllocatorStrategy     AllocatorStrategy
	DefaultRecordHintSize int
}

func (cfg EngineConfig) hintSize() int {
	if cfg.DefaultRecordHintSize > 0 {
		return cfg.DefaultRecordHintSize
	}
	return 24
}

// Engine wires together a crypto provider, a shared storage backend,
// and every live Client. It is the unit Commit/Load operate on.
type Engine struct {
	cfg      EngineConfig
	provider crypto.Provider
	backend  storage.Backend

	mu      sync.RWMutex
	clients map[vault.ClientId]*client.Client

	closeOnce sync.Once
	closeErr  error
}

// NewEngine constructs an Engine and the default crypto provider,
// creating cfg.SnapshotDirectory if it doesn't already exist. When
// SnapshotDirectory is set, transactions and blobs persist durably in a
// bbolt database inside it (pkg/storage.BoltStore); with no directory
// configured the engine falls back to an in-memory backend, useful for
// tests and for callers who only care about the bytes Commit returns.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	var backend storage.Backend
	if cfg.SnapshotDirectory != "" {
		if err := os.MkdirAll(cfg.SnapshotDirectory, 0o700); err != nil {
			return nil, fmt.Errorf("stronghold: create snapshot directory: %w", err)
		}
		bolt, err := storage.NewBoltStore(cfg.SnapshotDirectory)
		if err != nil {
			return nil, fmt.Errorf("stronghold: open transaction store: %w", err)
		}
		backend = bolt
	} else {
		backend = storage.NewMemStore()
	}
	return &Engine{
		cfg:      cfg,
		provider: crypto.NewDefaultProvider(),
		backend:  backend,
		clients:  make(map[vault.ClientId]*client.Client),
	}, nil
}

// Close releases the engine's storage backend (the bbolt file handle,
// when SnapshotDirectory is configured). Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { e.closeErr = e.backend.Close() })
	return e.closeErr
}

// Provider returns the engine's crypto provider.
func (e *Engine) Provider() crypto.Provider { return e.provider }

// RecordHintSize returns the configured default record hint size.
func (e *Engine) RecordHintSize() int { return e.cfg.hintSize() }

// CreateClient allocates a fresh client identified by id, with a
// randomly generated location-derivation key, and registers it with
// the engine.
func (e *Engine) CreateClient(id vault.ClientId) (*client.Client, error) {
	idKey := make([]byte, client.IDKeySize)
	if err := e.provider.Random(idKey); err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrAllocationFailed, err)
	}
	c, err := client.NewWithStrategy(id, idKey, e.provider, e.backend, e.cfg.keystoreStrategy())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.clients[id] = c
	e.mu.Unlock()
	return c, nil
}

// Client returns the previously created or loaded client for id, or
// nil if none is registered.
func (e *Engine) Client(id vault.ClientId) *client.Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clients[id]
}

// Clients returns every currently registered client id.
func (e *Engine) Clients() []vault.ClientId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]vault.ClientId, 0, len(e.clients))
	for id := range e.clients {
		out = append(out, id)
	}
	return out
}

// Commit seals every registered client's state into name, inside
// cfg.SnapshotDirectory, sealed under password. Client state is
// gathered in ClientId lexicographic order, giving every Commit call
// the same deterministic lock-acquisition order when multiple clients
// are involved.
func (e *Engine) Commit(name string, password []byte) error {
	e.mu.RLock()
	ids := make([]vault.ClientId, 0, len(e.clients))
	for id := range e.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	clients := make([]*client.Client, len(ids))
	for i, id := range ids {
		clients[i] = e.clients[id]
	}
	e.mu.RUnlock()

	state := snapshot.NewState()
	for i, c := range clients {
		cs, err := c.ExportState()
		if err != nil {
			return fmt.Errorf("stronghold: commit: export client %s: %w", ids[i], err)
		}
		state.Clients[ids[i].String()] = *cs
	}

	path := filepath.Join(e.cfg.SnapshotDirectory, name)
	if err := snapshot.Write(path, password, state); err != nil {
		return err
	}
	log.Logger.Info().Str("path", path).Int("clients", len(ids)).Msg("stronghold: snapshot committed")
	return nil
}

// Load replaces every registered client with the clients sealed in
// name under password. On a bad password or corrupted snapshot, Load
// returns the error and leaves the engine's existing clients untouched
// — no partial state is installed.
func (e *Engine) Load(name string, password []byte) error {
	path := filepath.Join(e.cfg.SnapshotDirectory, name)
	state, err := snapshot.Load(path, password)
	if err != nil {
		return err
	}

	restored := make(map[vault.ClientId]*client.Client, len(state.Clients))
	for hexID, cs := range state.Clients {
		id, err := parseClientID(hexID)
		if err != nil {
			return fmt.Errorf("%w: %v", engineerr.ErrCorruptedSnapshot, err)
		}
		csCopy := cs
		c, err := client.Restore(id, &csCopy, e.provider, e.backend, e.cfg.keystoreStrategy())
		if err != nil {
			return fmt.Errorf("stronghold: load: restore client %s: %w", hexID, err)
		}
		restored[id] = c
	}

	e.mu.Lock()
	e.clients = restored
	e.mu.Unlock()
	log.Logger.Info().Str("path", path).Int("clients", len(restored)).Msg("stronghold: snapshot loaded")
	return nil
}

func parseClientID(hexID string) (vault.ClientId, error) {
	var id vault.ClientId
	b, err := hex.DecodeString(hexID)
	if err != nil || len(b) != len(id) {
		return vault.ClientId{}, fmt.Errorf("stronghold: malformed client id %q", hexID)
	}
	copy(id[:], b)
	return id, nil
}
