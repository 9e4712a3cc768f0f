package guarded

import (
	"strings"
	"testing"
)

func TestNewBufferRoundTrip(t *testing.T) {
	buf, err := NewBuffer([]byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer buf.Release()

	g, err := buf.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	defer g.Close()

	got := g.Bytes()
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBufferBorrowMut(t *testing.T) {
	buf, err := Zero[byte](4)
	if err != nil {
		t.Fatalf("Zero: %v", err)
	}
	defer buf.Release()

	w, err := buf.BorrowMut()
	if err != nil {
		t.Fatalf("BorrowMut: %v", err)
	}
	copy(w.Bytes(), []byte{7, 1, 0, 0})
	w.Close()

	r, err := buf.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	defer r.Close()
	if r.Bytes()[0] != 7 || r.Bytes()[1] != 1 {
		t.Fatalf("unexpected contents: %v", r.Bytes())
	}
}

func TestBufferConcurrentReaders(t *testing.T) {
	buf, err := NewBuffer([]byte{9, 9})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer buf.Release()

	g1, err := buf.Borrow()
	if err != nil {
		t.Fatalf("Borrow 1: %v", err)
	}
	g2, err := buf.Borrow()
	if err != nil {
		t.Fatalf("Borrow 2: %v", err)
	}
	g1.Close()
	g2.Close()
}

func TestBufferExclusiveWriteRejectsConcurrentBorrow(t *testing.T) {
	buf, err := Zero[byte](2)
	if err != nil {
		t.Fatalf("Zero: %v", err)
	}
	defer buf.Release()

	w, err := buf.BorrowMut()
	if err != nil {
		t.Fatalf("BorrowMut: %v", err)
	}
	defer w.Close()

	if _, err := buf.Borrow(); err == nil {
		t.Fatal("expected Borrow to fail while a write guard is held")
	}
}

func TestBufferStringHidesContents(t *testing.T) {
	buf, err := NewBuffer([]byte{0xde, 0xad, 0xbe, 0xef})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer buf.Release()

	s := buf.String()
	if strings.Contains(s, "222") || strings.Contains(s, "\xde") {
		t.Fatalf("String() leaked contents: %q", s)
	}
	if !strings.Contains(s, "len: 4") {
		t.Fatalf("String() = %q, want it to report len: 4", s)
	}
}

func TestBufferEqual(t *testing.T) {
	a, err := NewBuffer([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("NewBuffer a: %v", err)
	}
	defer a.Release()
	b, err := NewBuffer([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("NewBuffer b: %v", err)
	}
	defer b.Release()
	c, err := NewBuffer([]byte{1, 2, 4})
	if err != nil {
		t.Fatalf("NewBuffer c: %v", err)
	}
	defer c.Release()

	eq, err := a.Equal(b)
	if err != nil || !eq {
		t.Fatalf("a.Equal(b) = %v, %v, want true, nil", eq, err)
	}
	eq, err = a.Equal(c)
	if err != nil || eq {
		t.Fatalf("a.Equal(c) = %v, %v, want false, nil", eq, err)
	}
}

func TestNonContiguousMemoryRoundTrip(t *testing.T) {
	secret := []byte("top secret material, 32+ bytes!!")
	ncm, err := NewNonContiguousMemory(secret)
	if err != nil {
		t.Fatalf("NewNonContiguousMemory: %v", err)
	}
	defer ncm.Release()

	guard, cleanup, err := ncm.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	defer cleanup()

	got := guard.Bytes()
	if string(got) != string(secret) {
		t.Fatalf("reconstructed = %q, want %q", got, secret)
	}
}
