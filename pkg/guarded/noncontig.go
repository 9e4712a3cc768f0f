package guarded

import (
	"crypto/rand"
	"fmt"
)

// defaultShards is the number of XOR shards NonContiguousMemory splits a
// secret across by default. Each shard lives in its own mmap'd Region at
// an OS-chosen address, so the reconstructed plaintext never sits
// contiguous in memory except for the brief window a Borrow holds it in
// a throwaway combination buffer.
const defaultShards = 3

// NonContiguousMemory holds a secret split into XOR shards across
// several independently-allocated guarded Regions, modeled on the
// fragmenting allocator's goal of denying an attacker a single
// contiguous address range to scan for key material. Reconstructing the
// plaintext requires combining every shard; Borrow does this into a
// short-lived Buffer that is released as soon as the caller is done.
type NonContiguousMemory struct {
	shards []*Buffer[byte]
	len    int
}

// NewNonContiguousMemory splits payload across defaultShards guarded
// regions. The original payload is not retained by the caller; the
// caller should zero it after this call succeeds.
func NewNonContiguousMemory(payload []byte) (*NonContiguousMemory, error) {
	return newNonContiguousMemory(payload, defaultShards)
}

// writeInto copies data into a freshly (Zero-)allocated guarded Buffer
// under a single write borrow.
func writeInto(buf *Buffer[byte], data []byte) error {
	g, err := buf.BorrowMut()
	if err != nil {
		return err
	}
	copy(g.Bytes(), data)
	g.Close()
	return nil
}

// shardContent returns the bytes each of the shardCount shards should
// hold: shardCount-1 random fillers plus one final shard that XORs the
// whole set back to payload.
func shardContent(payload []byte, shardCount int) ([][]byte, error) {
	n := len(payload)
	acc := make([]byte, n)
	content := make([][]byte, shardCount)
	for i := 0; i < shardCount-1; i++ {
		rnd := make([]byte, n)
		if _, err := rand.Read(rnd); err != nil {
			return nil, fmt.Errorf("guarded: shard fill: %w", err)
		}
		content[i] = rnd
		for j := range acc {
			acc[j] ^= rnd[j]
		}
	}
	for j := range acc {
		acc[j] ^= payload[j]
	}
	content[shardCount-1] = acc
	return content, nil
}

func newNonContiguousMemory(payload []byte, shardCount int) (*NonContiguousMemory, error) {
	if shardCount < 2 {
		return nil, fmt.Errorf("guarded: non-contiguous memory requires at least 2 shards")
	}
	n := len(payload)
	content, err := shardContent(payload, shardCount)
	if err != nil {
		return nil, err
	}

	shards := make([]*Buffer[byte], shardCount)
	releaseAll := func() {
		for _, s := range shards {
			if s != nil {
				s.Release()
			}
		}
	}

	// Allocate shards in fragmented pairs so that adjacent shards'
	// Regions land at least DefaultMinSpread bytes apart in the
	// address space: a single partial memory disclosure then can't
	// land on two shards of the same pair at once.
	i := 0
	for ; i+1 < shardCount; i += 2 {
		a, b, err := FragmentedAllocate[byte](n, DefaultMinSpread)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("guarded: fragmented shard pair: %w", err)
		}
		if err := writeInto(a, content[i]); err != nil {
			releaseAll()
			b.Release()
			return nil, err
		}
		if err := writeInto(b, content[i+1]); err != nil {
			releaseAll()
			b.Release()
			return nil, err
		}
		shards[i], shards[i+1] = a, b
	}
	if i < shardCount {
		last, err := NewBuffer(content[i])
		if err != nil {
			releaseAll()
			return nil, err
		}
		shards[i] = last
	}

	return &NonContiguousMemory{shards: shards, len: n}, nil
}

// Len returns the length of the reconstructed secret in bytes.
func (m *NonContiguousMemory) Len() int { return m.len }

// Borrow reconstructs the plaintext into a freshly-allocated guarded
// Buffer and returns a read guard on it. The combination buffer is
// released by the returned cleanup func, not by closing the guard; the
// shards themselves are never combined in place.
func (m *NonContiguousMemory) Borrow() (*ReadGuard[byte], func(), error) {
	combined := make([]byte, m.len)
	for _, s := range m.shards {
		g, err := s.Borrow()
		if err != nil {
			return nil, nil, err
		}
		src := g.Bytes()
		for j := range combined {
			combined[j] ^= src[j]
		}
		g.Close()
	}
	buf, err := NewBuffer(combined)
	for j := range combined {
		combined[j] = 0
	}
	if err != nil {
		return nil, nil, err
	}
	guard, err := buf.Borrow()
	if err != nil {
		buf.Release()
		return nil, nil, err
	}
	cleanup := func() {
		guard.Close()
		buf.Release()
	}
	return guard, cleanup, nil
}

// Release releases every shard's guarded region.
func (m *NonContiguousMemory) Release() {
	for _, s := range m.shards {
		s.Release()
	}
}
