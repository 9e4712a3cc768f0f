package guarded

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vaultcore/stronghold/pkg/metrics"
)

const canarySize = 8

var pageSize = unix.Getpagesize()

// protState tracks the mprotect state of a Region's user pages.
type protState int

const (
	stateProtected protState = iota // PROT_NONE
	stateReadable                   // PROT_READ
	stateWritable                   // PROT_READ|PROT_WRITE
)

// Region is a single guarded allocation: one PROT_NONE guard page, then a
// run of pages holding a leading canary, the user payload, and a trailing
// canary, then a second PROT_NONE guard page. The user pages are mlock'd
// and held PROT_NONE except while a caller has an active borrow.
type Region struct {
	mu sync.Mutex

	mem        []byte // entire mapping, including both guard pages
	userOffset int     // offset of user payload within mem
	userLen    int
	canaryPre  int // offset of leading canary within mem
	canaryPost int // offset of trailing canary within mem

	state    protState
	borrows  int // count of active ReadGuards (WriteGuard implies exactly 1 and no readers)
	writer   bool
	released bool
}

// NewRegion allocates a guarded region large enough to hold size bytes of
// user payload. size may be zero (an empty region is still guard-paged).
func NewRegion(size int) (*Region, error) {
	if size < 0 {
		return nil, fmt.Errorf("guarded: negative region size")
	}

	innerLen := canarySize + size + canarySize
	innerPages := (innerLen + pageSize - 1) / pageSize
	if innerPages == 0 {
		innerPages = 1
	}
	total := pageSize + innerPages*pageSize + pageSize

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		metrics.RegionAllocFailures.Inc()
		return nil, fmt.Errorf("guarded: mmap: %w", err)
	}

	innerStart := pageSize
	innerEnd := pageSize + innerPages*pageSize

	r := &Region{
		mem:        mem,
		userOffset: innerStart + canarySize,
		userLen:    size,
		canaryPre:  innerStart,
		canaryPost: innerStart + canarySize + size,
		state:      stateProtected,
	}

	if err := unix.Mprotect(mem[innerStart:innerEnd], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		unix.Munmap(mem)
		metrics.RegionAllocFailures.Inc()
		return nil, fmt.Errorf("guarded: mprotect init: %w", err)
	}

	canary := make([]byte, canarySize)
	if _, err := rand.Read(canary); err != nil {
		unix.Munmap(mem)
		metrics.RegionAllocFailures.Inc()
		return nil, fmt.Errorf("guarded: generate canary: %w", err)
	}
	copy(mem[r.canaryPre:r.canaryPre+canarySize], canary)
	copy(mem[r.canaryPost:r.canaryPost+canarySize], canary)

	// Best effort: mlock can fail under a low RLIMIT_MEMLOCK in
	// containers. The region is still guard-paged even if unlocked.
	_ = unix.Mlock(mem[innerStart:innerEnd])

	if err := unix.Mprotect(mem[innerStart:innerEnd], unix.PROT_NONE); err != nil {
		unix.Munmap(mem)
		metrics.RegionAllocFailures.Inc()
		return nil, fmt.Errorf("guarded: mprotect lock: %w", err)
	}

	metrics.RegionsLive.Inc()
	return r, nil
}

func (r *Region) innerBounds() (start, end int) {
	return r.canaryPre, r.canaryPost + canarySize
}

// unprotect switches the inner pages to PROT_READ (write=false) or
// PROT_READ|PROT_WRITE (write=true). Caller must hold r.mu.
func (r *Region) unprotect(write bool) error {
	start, end := r.innerBounds()
	prot := unix.PROT_READ
	if write {
		prot |= unix.PROT_WRITE
	}
	if err := unix.Mprotect(r.mem[start:end], prot); err != nil {
		return fmt.Errorf("guarded: mprotect unlock: %w", err)
	}
	if write {
		r.state = stateWritable
	} else {
		r.state = stateReadable
	}
	return nil
}

// protect re-verifies the canaries and re-protects the inner pages to
// PROT_NONE. Caller must hold r.mu. A canary mismatch means something
// wrote past the user payload's bounds and is always fatal.
func (r *Region) protect() {
	pre := r.mem[r.canaryPre : r.canaryPre+canarySize]
	post := r.mem[r.canaryPost : r.canaryPost+canarySize]
	if !bytes.Equal(pre, post) {
		fatal("guarded: canary mismatch on protect")
		return
	}
	start, end := r.innerBounds()
	if err := unix.Mprotect(r.mem[start:end], unix.PROT_NONE); err != nil {
		fatal("guarded: mprotect relock failed: " + err.Error())
		return
	}
	r.state = stateProtected
}

// acquireRead unprotects for reading and increments the borrow count.
func (r *Region) acquireRead() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return fmt.Errorf("guarded: use after free")
	}
	if r.writer {
		return fmt.Errorf("guarded: region already exclusively borrowed")
	}
	if r.borrows == 0 {
		if err := r.unprotect(false); err != nil {
			return err
		}
	}
	r.borrows++
	return nil
}

func (r *Region) releaseRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.borrows--
	if r.borrows < 0 {
		fatal("guarded: read-borrow count went negative")
		return
	}
	if r.borrows == 0 {
		r.protect()
	}
}

// acquireWrite unprotects for writing exclusively.
func (r *Region) acquireWrite() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return fmt.Errorf("guarded: use after free")
	}
	if r.writer || r.borrows > 0 {
		return fmt.Errorf("guarded: region already borrowed")
	}
	if err := r.unprotect(true); err != nil {
		return err
	}
	r.writer = true
	return nil
}

func (r *Region) releaseWrite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	if !r.writer {
		fatal("guarded: releaseWrite without a held write borrow")
		return
	}
	r.writer = false
	r.protect()
}

// slice returns the raw user payload slice. Caller must already hold an
// active read or write borrow (inner pages must be readable).
func (r *Region) slice() []byte {
	return r.mem[r.userOffset : r.userOffset+r.userLen]
}

// Len returns the user payload length in bytes.
func (r *Region) Len() int { return r.userLen }

// Release zeroes the user payload and both canaries, then unmaps the
// entire region. It is idempotent. A canary mismatch detected here
// indicates an out-of-bounds write happened while the region was mapped
// and is fatal.
func (r *Region) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	if r.borrows > 0 || r.writer {
		fatal("guarded: release while borrowed")
		return
	}

	start, end := r.innerBounds()
	if err := unix.Mprotect(r.mem[start:end], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		fatal("guarded: mprotect for release failed: " + err.Error())
		return
	}

	pre := r.mem[r.canaryPre : r.canaryPre+canarySize]
	post := r.mem[r.canaryPost : r.canaryPost+canarySize]
	if !bytes.Equal(pre, post) {
		fatal("guarded: canary mismatch on release")
		return
	}

	for i := start; i < end; i++ {
		r.mem[i] = 0
	}

	if err := unix.Munmap(r.mem); err != nil {
		fatal("guarded: munmap failed: " + err.Error())
		return
	}

	r.released = true
	r.mem = nil
	metrics.RegionsLive.Dec()
}
