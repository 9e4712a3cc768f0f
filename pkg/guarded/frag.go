package guarded

import (
	"fmt"
	"unsafe"
)

// DefaultMinSpread is the fragmented allocator's default minimum
// virtual-address distance between its two Regions.
const DefaultMinSpread = 0xFFFF

// maxFragAttempts bounds how many allocate-and-check rounds
// FragmentedAllocate tries before giving up. The OS's mmap placement is
// not under this package's control, so a bound keeps a run of
// unlucky-but-valid placements from looping forever.
const maxFragAttempts = 16

// addr returns the virtual address of the region's underlying mapping.
// Used only to check fragmentation spread; never exposed outside this
// package and never derived from secret content.
func (r *Region) addr() uintptr {
	if len(r.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

func addrDistance(x, y uintptr) uintptr {
	if x > y {
		return x - y
	}
	return y - x
}

// FragmentedAllocate allocates two guarded Buffers of n elements each,
// retrying (bounded) until their backing Regions' virtual addresses
// differ by at least minSpread bytes (zero selects DefaultMinSpread).
// It is the secondary allocator behind NonContiguousMemory's shard
// placement: spreading parts of a long-lived key across non-contiguous
// regions so a single partial memory disclosure can't leak the whole
// key. Both buffers are returned zeroed; the caller fills them.
func FragmentedAllocate[T any](n int, minSpread uintptr) (*Buffer[T], *Buffer[T], error) {
	if minSpread == 0 {
		minSpread = DefaultMinSpread
	}
	for attempt := 0; attempt < maxFragAttempts; attempt++ {
		a, err := Zero[T](n)
		if err != nil {
			return nil, nil, err
		}
		b, err := Zero[T](n)
		if err != nil {
			a.Release()
			return nil, nil, err
		}
		if addrDistance(a.region.addr(), b.region.addr()) >= minSpread {
			return a, b, nil
		}
		a.Release()
		b.Release()
	}
	return nil, nil, fmt.Errorf("guarded: could not fragment regions past minSpread=%#x after %d attempts", minSpread, maxFragAttempts)
}
