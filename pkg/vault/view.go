package vault

import (
	"bytes"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/log"
	"github.com/vaultcore/stronghold/pkg/metrics"
	"github.com/vaultcore/stronghold/pkg/storage"
)

// chain holds every transaction ever loaded for one ChainId, plus the
// replay result: which data transaction (if any) is currently valid.
type chain struct {
	init     *Transaction
	data     []*Transaction // all Data transactions seen, any order
	revokes  []*Transaction // all Revoke transactions seen
	valid    *Transaction   // nil if the chain has no valid record
	garbage  []*Transaction // every Data/Revoke tx that is not the valid record
	maxCount uint64
}

// View is the deterministic, replayable projection of a vault's sealed
// transactions: for every chain, its init, its current valid record (if
// any), and the accumulated garbage. Rebuilding a View from the same
// input transactions under the same key always yields an identical
// structure, independent of input order (I2, P4).
type View struct {
	chains map[ChainId]*chain

	cacheMu sync.Mutex
	cache   map[BlobId][]byte // plaintext already fetched this view's lifetime
}

// Load decrypts every supplied transaction under key and replays each
// chain to compute its valid record. Transactions that fail to decrypt
// or authenticate are dropped (with a metrics counter bump) rather than
// aborting the load, per the spec's failure semantics for C3.
func Load(provider crypto.Provider, key []byte, transactions []storage.ReadResult) *View {
	v := &View{chains: make(map[ChainId]*chain), cache: make(map[BlobId][]byte)}

	decoded := make([]*Transaction, 0, len(transactions))
	for _, rec := range transactions {
		tx, err := OpenTransaction(provider, key, rec)
		if err != nil {
			metrics.DecryptFailuresTotal.Inc()
			log.Logger.Warn().Str("id", rec.ID).Err(err).Msg("vault: dropping transaction that failed to open")
			continue
		}
		decoded = append(decoded, tx)
	}

	for _, tx := range decoded {
		c := v.chainFor(tx.ChainId)
		switch tx.Kind {
		case TxInit:
			if c.init == nil || lessTxID(tx.Id, c.init.Id) {
				c.init = tx
			}
		case TxData:
			c.data = append(c.data, tx)
		case TxRevoke:
			c.revokes = append(c.revokes, tx)
		}
		if tx.Counter > c.maxCount {
			c.maxCount = tx.Counter
		}
	}

	for _, c := range v.chains {
		c.replay()
	}

	return v
}

func lessTxID(a, b [idSize]byte) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (v *View) chainFor(id ChainId) *chain {
	c, ok := v.chains[id]
	if !ok {
		c = &chain{}
		v.chains[id] = c
	}
	return c
}

// replay computes c.valid and c.garbage from c.data and c.revokes,
// deterministically regardless of slice order.
func (c *chain) replay() {
	data := append([]*Transaction(nil), c.data...)
	sort.Slice(data, func(i, j int) bool {
		if data[i].Counter != data[j].Counter {
			return data[i].Counter > data[j].Counter
		}
		return lessTxID(data[i].Id, data[j].Id)
	})

	revoked := make(map[[idSize]byte]bool)
	for _, r := range c.revokes {
		var nearest *Transaction
		for _, d := range data {
			if d.Counter < r.Counter {
				if nearest == nil || d.Counter > nearest.Counter ||
					(d.Counter == nearest.Counter && lessTxID(d.Id, nearest.Id)) {
					nearest = d
				}
			}
		}
		if nearest != nil {
			revoked[nearest.Id] = true
		}
	}

	// Every data transaction below the highest counter is shadowed by a
	// later replacement, so only data[0] can be the valid record.
	if len(data) > 0 && !revoked[data[0].Id] {
		c.valid = data[0]
	}

	for _, d := range data {
		if c.valid == nil || d.Id != c.valid.Id {
			c.garbage = append(c.garbage, d)
		}
	}
	c.garbage = append(c.garbage, c.revokes...)
}

// List enumerates every valid record's id and hint.
func (v *View) List() []RecordHintPair {
	out := make([]RecordHintPair, 0, len(v.chains))
	for id, c := range v.chains {
		if c.valid != nil {
			out = append(out, RecordHintPair{RecordId: id, Hint: c.valid.RecordHint})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].RecordId[:], out[j].RecordId[:]) < 0 })
	return out
}

// RecordHintPair is one entry returned by View.List.
type RecordHintPair struct {
	RecordId RecordId
	Hint     [hintSize]byte
}

// ValidRecord returns the current valid record's counter and hint for
// id, used by client-level sync to compare recency across two views
// without exposing the chain's internal structure.
func (v *View) ValidRecord(id RecordId) (counter uint64, hint [hintSize]byte, ok bool) {
	c, exists := v.chains[id]
	if !exists || c.valid == nil {
		return 0, [hintSize]byte{}, false
	}
	return c.valid.Counter, c.valid.RecordHint, true
}

// Contains reports whether the chain has any transaction loaded at all.
func (v *View) Contains(id RecordId) bool {
	_, ok := v.chains[id]
	return ok
}

// Counters returns the highest counter observed for every chain.
func (v *View) Counters() map[RecordId]uint64 {
	out := make(map[RecordId]uint64, len(v.chains))
	for id, c := range v.chains {
		out[id] = c.maxCount
	}
	return out
}

// nextCounter returns the counter the next write to this chain should use.
func (v *View) nextCounter(id RecordId) uint64 {
	c, ok := v.chains[id]
	if !ok {
		return 0
	}
	return c.maxCount + 1
}

// cacheKey and storeInCache guard the plaintext cache with their own
// mutex so callers may hold only a shared lock across PrepareRead and
// FinishRead, per the read-only operations in §5 of the design.
func (v *View) cacheKey(id BlobId) ([]byte, bool) {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	b, ok := v.cache[id]
	return b, ok
}

func (v *View) storeInCache(id BlobId, plaintext []byte) {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.cache[id] = plaintext
}

// transactionID and blobID helpers used by gc.go and writer.go.
func hexID(id [idSize]byte) string { return hex.EncodeToString(id[:]) }
