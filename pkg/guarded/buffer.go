package guarded

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"unsafe"
)

// Buffer is a guarded, fixed-size array of T backed by a single Region.
// It is the engine's replacement for a plain []T whenever the contents
// are secret: vault keys, decrypted payloads, derived key material, and
// procedure inputs/outputs all live in a Buffer rather than a slice.
//
// The zero value is not usable; construct with NewBuffer, Zero, or
// Random. A Buffer must be released exactly once with Release.
type Buffer[T any] struct {
	region *Region
	len    int // element count (region.Len() == len * sizeof(T))
}

func elemSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// NewBuffer allocates a guarded Buffer and copies payload into it.
func NewBuffer[T any](payload []T) (*Buffer[T], error) {
	size := elemSize[T]()
	region, err := NewRegion(len(payload) * size)
	if err != nil {
		return nil, err
	}
	b := &Buffer[T]{region: region, len: len(payload)}
	if len(payload) > 0 {
		if err := region.acquireWrite(); err != nil {
			region.Release()
			return nil, err
		}
		dst := unsafe.Slice((*T)(unsafe.Pointer(&region.slice()[0])), len(payload))
		copy(dst, payload)
		region.releaseWrite()
	}
	return b, nil
}

// Zero allocates a guarded Buffer of n zeroed elements.
func Zero[T any](n int) (*Buffer[T], error) {
	size := elemSize[T]()
	region, err := NewRegion(n * size)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{region: region, len: n}, nil
}

// Random allocates a guarded Buffer of n elements filled with
// cryptographically random bytes. T must be a fixed-size byte-like type;
// Random is primarily used to allocate raw key material as
// Buffer[byte].
func Random[T any](n int) (*Buffer[T], error) {
	size := elemSize[T]()
	region, err := NewRegion(n * size)
	if err != nil {
		return nil, err
	}
	b := &Buffer[T]{region: region, len: n}
	if n > 0 {
		if err := region.acquireWrite(); err != nil {
			region.Release()
			return nil, err
		}
		if _, err := rand.Read(region.slice()); err != nil {
			region.releaseWrite()
			region.Release()
			return nil, fmt.Errorf("guarded: random fill: %w", err)
		}
		region.releaseWrite()
	}
	return b, nil
}

// Len returns the number of elements in the buffer.
func (b *Buffer[T]) Len() int { return b.len }

// IsEmpty reports whether the buffer has zero elements.
func (b *Buffer[T]) IsEmpty() bool { return b.len == 0 }

// Release zeroes and unmaps the buffer's backing region. Idempotent.
func (b *Buffer[T]) Release() {
	b.region.Release()
}

// Borrow takes a shared, read-only guard on the buffer's contents. The
// guard must be released with Close before the buffer can be written to
// or released.
func (b *Buffer[T]) Borrow() (*ReadGuard[T], error) {
	if err := b.region.acquireRead(); err != nil {
		return nil, err
	}
	return &ReadGuard[T]{buf: b}, nil
}

// BorrowMut takes an exclusive, writable guard on the buffer's contents.
func (b *Buffer[T]) BorrowMut() (*WriteGuard[T], error) {
	if err := b.region.acquireWrite(); err != nil {
		return nil, err
	}
	return &WriteGuard[T]{buf: b}, nil
}

func (b *Buffer[T]) typedSlice() []T {
	if b.len == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.region.slice()[0])), b.len)
}

// Equal performs a constant-time comparison of two buffers' contents.
// Buffers of different lengths are never equal, but that length check
// is not constant-time (lengths are not secret).
func (b *Buffer[T]) Equal(other *Buffer[T]) (bool, error) {
	if b.len != other.len {
		return false, nil
	}
	ra, err := b.Borrow()
	if err != nil {
		return false, err
	}
	defer ra.Close()
	rb, err := other.Borrow()
	if err != nil {
		return false, err
	}
	defer rb.Close()
	return subtle.ConstantTimeCompare(ra.buf.region.slice(), rb.buf.region.slice()) == 1, nil
}

// String never exposes contents, only the element count, matching the
// engine's rule that secret material never reaches a log line or a
// %v/%s format verb.
func (b *Buffer[T]) String() string {
	return fmt.Sprintf("guarded.Buffer{len: %d, hidden}", b.len)
}

// GoString matches String for %#v formatting.
func (b *Buffer[T]) GoString() string { return b.String() }

// ReadGuard is a scoped, shared read borrow of a Buffer's contents. It
// must be released with Close; failing to do so leaks the borrow count,
// and every later BorrowMut on the same Buffer fails with an error.
type ReadGuard[T any] struct {
	buf    *Buffer[T]
	closed bool
}

// Bytes returns the guarded contents. The returned slice aliases guarded
// memory and is only valid until Close.
func (g *ReadGuard[T]) Bytes() []T {
	return g.buf.typedSlice()
}

// Close releases the read borrow, re-protecting the buffer once the
// last concurrent reader has closed.
func (g *ReadGuard[T]) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.buf.region.releaseRead()
}

func (g *ReadGuard[T]) String() string { return g.buf.String() }

// WriteGuard is a scoped, exclusive write borrow of a Buffer's contents.
type WriteGuard[T any] struct {
	buf    *Buffer[T]
	closed bool
}

// Bytes returns the guarded contents for in-place mutation. The returned
// slice aliases guarded memory and is only valid until Close.
func (g *WriteGuard[T]) Bytes() []T {
	return g.buf.typedSlice()
}

// Close releases the write borrow and re-protects the buffer.
func (g *WriteGuard[T]) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.buf.region.releaseWrite()
}

func (g *WriteGuard[T]) String() string { return g.buf.String() }
