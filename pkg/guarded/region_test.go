package guarded

import "testing"

func TestNewRegionAllocAndRelease(t *testing.T) {
	r, err := NewRegion(100)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	if r.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", r.Len())
	}
	r.Release()
	r.Release() // idempotent
}

func TestRegionZeroSize(t *testing.T) {
	r, err := NewRegion(0)
	if err != nil {
		t.Fatalf("NewRegion(0): %v", err)
	}
	defer r.Release()
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestRegionReadWriteRoundTrip(t *testing.T) {
	r, err := NewRegion(16)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Release()

	if err := r.acquireWrite(); err != nil {
		t.Fatalf("acquireWrite: %v", err)
	}
	copy(r.slice(), []byte("0123456789abcdef"))
	r.releaseWrite()

	if err := r.acquireRead(); err != nil {
		t.Fatalf("acquireRead: %v", err)
	}
	got := string(r.slice())
	r.releaseRead()

	if got != "0123456789abcdef" {
		t.Fatalf("slice = %q", got)
	}
}

func TestRegionRejectsDoubleWriteBorrow(t *testing.T) {
	r, err := NewRegion(8)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Release()

	if err := r.acquireWrite(); err != nil {
		t.Fatalf("acquireWrite: %v", err)
	}
	defer r.releaseWrite()

	if err := r.acquireWrite(); err == nil {
		t.Fatal("expected second acquireWrite to fail while first is held")
	}
}

func TestRegionFatalHookInvokedOnCanaryMismatch(t *testing.T) {
	r, err := NewRegion(8)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}

	invoked := false
	prev := fatalHook
	fatalHook = func(reason string) { invoked = true }

	// Simulate an out-of-bounds write past the trailing canary by
	// corrupting it directly while the region is unprotected.
	if err := r.acquireWrite(); err != nil {
		fatalHook = prev
		t.Fatalf("acquireWrite: %v", err)
	}
	r.mem[r.canaryPost] ^= 0xff
	r.releaseWrite() // calls protect(), which detects the mismatch

	fatalHook = prev
	if !invoked {
		t.Fatal("expected fatalHook to be invoked on canary mismatch")
	}

	// The region is left in a corrupted, PROT_READ|WRITE-unprotected
	// state; it is deliberately left mapped rather than going through
	// Release, which would trip the fatal hook again for the same reason.
	_ = r
}
