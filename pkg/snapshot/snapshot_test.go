package snapshot

import (
	"path/filepath"
	"testing"
)

func twoClientState() *State {
	s := NewState()
	for _, id := range []string{"client-1", "client-2"} {
		cs := newClientState()
		cs.IDKey = []byte(id + "-idkey-0123456789abcdef")
		cs.Keys["vault-a"] = []byte(id + "-key")
		s.Clients[id] = cs
	}
	return s
}

func TestOpenSnapshotDoesNotDecryptUntilLoadClient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	password := []byte("a-strong-password-value")

	if err := Write(path, password, twoClientState()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, err := OpenSnapshot(path, password)
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	ids := snap.ClientIDs()
	if len(ids) != 2 {
		t.Fatalf("ClientIDs() = %v, want 2 entries", ids)
	}

	cs, err := snap.LoadClient("client-1")
	if err != nil {
		t.Fatalf("LoadClient(client-1): %v", err)
	}
	if string(cs.Keys["vault-a"]) != "client-1-key" {
		t.Fatalf("client-1 vault-a = %q, want client-1-key", cs.Keys["vault-a"])
	}

	// client-2 was never loaded; its ephemeral key must still be
	// present and its bytes still sealed.
	if _, ok := snap.sealed["client-2"]; !ok {
		t.Fatal("client-2 was decrypted without ever calling LoadClient")
	}

	// A client's ephemeral key is consumed by its one LoadClient call.
	if _, err := snap.LoadClient("client-1"); err == nil {
		t.Fatal("expected second LoadClient(client-1) to fail, key should be consumed")
	}
}

func TestLoadClientUnknownID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	password := []byte("password")

	if err := Write(path, password, twoClientState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap, err := OpenSnapshot(path, password)
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	if _, err := snap.LoadClient("does-not-exist"); err == nil {
		t.Fatal("expected LoadClient of an unknown id to fail")
	}
}

func TestSealSnapshotGivesEachClientADistinctKey(t *testing.T) {
	state := twoClientState()
	serialized, err := sealSnapshot(state)
	if err != nil {
		t.Fatalf("sealSnapshot: %v", err)
	}
	snap, err := openSnapshot(serialized)
	if err != nil {
		t.Fatalf("openSnapshot: %v", err)
	}
	if len(snap.sealed) != 2 {
		t.Fatalf("openSnapshot produced %d sealed entries, want 2", len(snap.sealed))
	}
	if !snap.keys.VaultExists(snapshotKeyID("client-1")) || !snap.keys.VaultExists(snapshotKeyID("client-2")) {
		t.Fatal("openSnapshot did not retain a per-client key for every client")
	}
}
