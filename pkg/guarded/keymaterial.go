package guarded

// KeyGuard is a scoped, read-only view over guarded key material. It is
// satisfied by Buffer[byte]'s ReadGuard directly and by a small adapter
// over NonContiguousMemory's reconstruct-then-release borrow, so a
// caller holding a KeyGuard never needs to know which allocator
// strategy produced the secret underneath it.
type KeyGuard interface {
	Bytes() []byte
	Close()
}

// KeyMaterial is implemented by ByteBuffer (the Direct allocator
// strategy, one contiguous guarded Region) and by *NonContiguousMemory
// (the Map strategy, XOR shards spread across fragmented Regions). The
// key store holds a KeyMaterial per vault rather than a concrete
// *Buffer[byte], so EngineConfig.AllocatorStrategy actually selects
// between two different memory layouts for every vault key.
type KeyMaterial interface {
	BorrowKey() (KeyGuard, error)
	Release()
}

// ByteBuffer is Buffer[byte] promoted to a named type so it can carry
// the BorrowKey method KeyMaterial requires — Go forbids adding methods
// directly to an instantiated generic type's alias.
type ByteBuffer struct {
	*Buffer[byte]
}

// BorrowKey satisfies KeyMaterial for the Direct allocator strategy.
func (b ByteBuffer) BorrowKey() (KeyGuard, error) {
	return b.Buffer.Borrow()
}

// ncmGuard adapts NonContiguousMemory.Borrow's (guard, cleanup) pair to
// the single-Close KeyGuard shape.
type ncmGuard struct {
	inner   *ReadGuard[byte]
	cleanup func()
}

func (g *ncmGuard) Bytes() []byte { return g.inner.Bytes() }
func (g *ncmGuard) Close()        { g.cleanup() }

// BorrowKey satisfies KeyMaterial for the Map allocator strategy.
func (m *NonContiguousMemory) BorrowKey() (KeyGuard, error) {
	guard, cleanup, err := m.Borrow()
	if err != nil {
		return nil, err
	}
	return &ncmGuard{inner: guard, cleanup: cleanup}, nil
}
