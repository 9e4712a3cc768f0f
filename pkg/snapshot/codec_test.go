package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultcore/stronghold/pkg/engineerr"
)

func testState() *State {
	s := NewState()
	cs := newClientState()
	cs.IDKey = []byte("0123456789abcdef0123456789abcdef")
	cs.Keys["vault-a"] = []byte{1, 2, 3, 4}
	cs.Transactions["tx-1"] = []byte{5, 6, 7}
	cs.Blobs["blob-1"] = []byte{8, 9}
	cs.Store["key"] = StoreEntry{Value: []byte("value"), ExpiresAtUnix: 0}
	s.Clients["client-1"] = cs
	return s
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	password := []byte("abcdefghijklmnopqrstuvwxyz123456")

	original := testState()
	if err := Write(path, password, original); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(path, password)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cs, ok := loaded.Clients["client-1"]
	if !ok {
		t.Fatal("missing client-1 after reload")
	}
	if string(cs.Keys["vault-a"]) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("vault-a key mismatch: %v", cs.Keys["vault-a"])
	}
	if cs.Store["key"].Value == nil || string(cs.Store["key"].Value) != "value" {
		t.Fatalf("store value mismatch: %v", cs.Store["key"])
	}
}

func TestLoadWrongPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	if err := Write(path, []byte("pw-1"), testState()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := Load(path, []byte("pw-2"))
	if !errors.Is(err, engineerr.ErrBadPassword) {
		t.Fatalf("Load with wrong password: err = %v, want ErrBadPassword", err)
	}
}

func TestLoadCorruptedBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	password := []byte("password")

	if err := Write(path, password, testState()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a single bit well past the version bytes.
	raw[len(raw)-1] ^= 0x01
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(path, password)
	if !errors.Is(err, engineerr.ErrBadPassword) && !errors.Is(err, engineerr.ErrCorruptedSnapshot) {
		t.Fatalf("Load after bit flip: err = %v, want BadPassword or CorruptedSnapshot", err)
	}
}

func TestLoadBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	if err := os.WriteFile(path, []byte("not a snapshot at all"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path, []byte("pw"))
	if !errors.Is(err, engineerr.ErrCorruptedSnapshot) {
		t.Fatalf("Load with bad magic: err = %v, want ErrCorruptedSnapshot", err)
	}
}

func TestWriteLeavesOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	password := []byte("pw")

	if err := Write(path, password, testState()); err != nil {
		t.Fatalf("initial Write: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	// Writing to a non-existent directory must fail before any rename,
	// leaving the existing snapshot file untouched.
	if err := Write(filepath.Join(dir, "missing-dir", "snap.bin"), password, testState()); err == nil {
		t.Fatal("expected Write to a missing directory to fail")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile after failed write: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("original snapshot was modified by a failed write elsewhere")
	}
}
