package vault

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/storage"
)

func newTestFixtures(t *testing.T) (crypto.Provider, []byte, []byte, storage.Backend) {
	t.Helper()
	provider := crypto.NewDefaultProvider()
	vaultKey := make([]byte, provider.KeySize())
	idKey := make([]byte, idKeySize)
	if err := provider.Random(vaultKey); err != nil {
		t.Fatalf("random vault key: %v", err)
	}
	if err := provider.Random(idKey); err != nil {
		t.Fatalf("random id key: %v", err)
	}
	return provider, vaultKey, idKey, storage.NewMemStore()
}

func loadAllTransactions(t *testing.T, backend storage.Backend) []storage.ReadResult {
	t.Helper()
	ids, err := backend.List(storage.KindTransaction)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	recs := make([]storage.ReadResult, 0, len(ids))
	for _, id := range ids {
		rec, err := backend.Read(storage.KindTransaction, id)
		if err != nil {
			t.Fatalf("read transaction %s: %v", id, err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func readRecord(t *testing.T, provider crypto.Provider, vaultKey []byte, backend storage.Backend, view *View, id RecordId) ([]byte, PrepareKind) {
	t.Helper()
	res := view.PrepareRead(id)
	switch res.Kind {
	case CacheHit:
		return res.Plaintext, CacheHit
	case CacheMiss:
		rec, err := backend.Read(storage.KindBlob, hexID(res.BlobID))
		if err != nil {
			t.Fatalf("read blob: %v", err)
		}
		pt, err := view.FinishRead(provider, vaultKey, res.BlobID, rec)
		if err != nil {
			t.Fatalf("finish read: %v", err)
		}
		return pt, CacheMiss
	default:
		return nil, res.Kind
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	provider, vaultKey, idKey, backend := newTestFixtures(t)

	loc := NewGenericLocation([]byte("wasp"), []byte("seed"))
	_, recordID, err := Resolve(provider, idKey, loc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	view := Load(provider, vaultKey, nil)
	hint := make([]byte, hintSize)
	copy(hint, []byte("first hint"))
	w := NewWriter(view, recordID, provider, vaultKey, backend)
	if err := w.Write([]byte("hello"), hint); err != nil {
		t.Fatalf("Write: %v", err)
	}

	pt, kind := readRecord(t, provider, vaultKey, backend, view, recordID)
	if kind != CacheMiss {
		t.Fatalf("expected CacheMiss on first read, got %v", kind)
	}
	if !bytes.Equal(pt, []byte("hello")) {
		t.Fatalf("read = %q, want %q", pt, "hello")
	}

	// Second read within the same view should hit the cache.
	pt2, kind2 := readRecord(t, provider, vaultKey, backend, view, recordID)
	if kind2 != CacheHit {
		t.Fatalf("expected CacheHit on second read, got %v", kind2)
	}
	if !bytes.Equal(pt2, []byte("hello")) {
		t.Fatalf("cached read = %q, want %q", pt2, "hello")
	}
}

func TestReplaceAndRevoke(t *testing.T) {
	provider, vaultKey, idKey, backend := newTestFixtures(t)

	loc := NewCounterLocation([]byte("path"), 0)
	_, recordID, err := Resolve(provider, idKey, loc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	view := Load(provider, vaultKey, nil)
	w := NewWriter(view, recordID, provider, vaultKey, backend)
	if err := w.Write([]byte("v1"), make([]byte, hintSize)); err != nil {
		t.Fatalf("Write v1: %v", err)
	}
	if err := w.Write([]byte("v2"), make([]byte, hintSize)); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	pt, _ := readRecord(t, provider, vaultKey, backend, view, recordID)
	if !bytes.Equal(pt, []byte("v2")) {
		t.Fatalf("read = %q, want %q", pt, "v2")
	}

	if err := w.Revoke(); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if res := view.PrepareRead(recordID); res.Kind != RecordIsEmpty {
		t.Fatalf("PrepareRead after revoke = %v, want RecordIsEmpty", res.Kind)
	}

	for _, del := range view.GC() {
		if err := backend.Delete(del); err != nil {
			t.Fatalf("apply GC delete: %v", err)
		}
	}
	if list := view.List(); len(list) != 0 {
		t.Fatalf("List after GC = %v, want empty", list)
	}

	// Reload from storage to confirm the revoked/superseded transactions
	// and their blobs were actually deleted, not just hidden in memory.
	ids, _ := backend.List(storage.KindTransaction)
	reloaded := Load(provider, vaultKey, loadAllTransactionsFromIDs(t, backend, ids))
	if res := reloaded.PrepareRead(recordID); res.Kind != NoSuchRecord && res.Kind != RecordIsEmpty {
		t.Fatalf("reloaded PrepareRead = %v", res.Kind)
	}
}

func loadAllTransactionsFromIDs(t *testing.T, backend storage.Backend, ids []string) []storage.ReadResult {
	t.Helper()
	recs := make([]storage.ReadResult, 0, len(ids))
	for _, id := range ids {
		rec, err := backend.Read(storage.KindTransaction, id)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestCounterMonotonicity(t *testing.T) {
	provider, vaultKey, idKey, backend := newTestFixtures(t)
	loc := NewGenericLocation([]byte("v"), []byte("r"))
	_, recordID, err := Resolve(provider, idKey, loc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	view := Load(provider, vaultKey, nil)
	w := NewWriter(view, recordID, provider, vaultKey, backend)

	var last uint64
	for i := 0; i < 5; i++ {
		if err := w.Write([]byte{byte(i)}, make([]byte, hintSize)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		counters := view.Counters()
		if counters[recordID] <= last && i > 0 {
			t.Fatalf("counter did not increase: %d <= %d", counters[recordID], last)
		}
		last = counters[recordID]
	}

	reloaded := Load(provider, vaultKey, loadAllTransactions(t, backend))
	if reloaded.Counters()[recordID] != last {
		t.Fatalf("reloaded counter = %d, want %d", reloaded.Counters()[recordID], last)
	}
}

func TestIdempotentLoadUnderPermutation(t *testing.T) {
	provider, vaultKey, idKey, backend := newTestFixtures(t)
	loc := NewGenericLocation([]byte("v"), []byte("r"))
	_, recordID, err := Resolve(provider, idKey, loc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	view := Load(provider, vaultKey, nil)
	w := NewWriter(view, recordID, provider, vaultKey, backend)
	for i := 0; i < 4; i++ {
		if err := w.Write([]byte{byte(i)}, make([]byte, hintSize)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	recs := loadAllTransactions(t, backend)
	permuted := append([]storage.ReadResult(nil), recs...)
	rand.Shuffle(len(permuted), func(i, j int) { permuted[i], permuted[j] = permuted[j], permuted[i] })

	v1 := Load(provider, vaultKey, recs)
	v2 := Load(provider, vaultKey, permuted)

	if v1.Counters()[recordID] != v2.Counters()[recordID] {
		t.Fatalf("counters differ across permutations")
	}
	r1 := v1.PrepareRead(recordID)
	r2 := v2.PrepareRead(recordID)
	if r1.Kind != r2.Kind {
		t.Fatalf("PrepareRead kind differs across permutations: %v vs %v", r1.Kind, r2.Kind)
	}
	if len(v1.List()) != len(v2.List()) {
		t.Fatalf("List differs across permutations")
	}
}
