package client

import (
	"bytes"
	"testing"

	"github.com/vaultcore/stronghold/pkg/vault"
)

func TestSyncWithKeepOtherImportsRecord(t *testing.T) {
	self := newTestClient(t)
	other := newTestClient(t)

	hint := make([]byte, 24)
	if err := other.Vault([]byte("wasp")).Write([]byte("seed"), []byte("from-other"), hint); err != nil {
		t.Fatalf("other write: %v", err)
	}

	cfg := SyncConfig{
		Policy:  KeepOther,
		Vaults:  []VaultMapping{{SourcePath: []byte("wasp")}},
		Records: []vault.Location{vault.NewGenericLocation([]byte("wasp"), []byte("seed"))},
	}
	if err := self.SyncWith(other, cfg); err != nil {
		t.Fatalf("SyncWith: %v", err)
	}

	got, err := self.Vault([]byte("wasp")).Read([]byte("seed"))
	if err != nil {
		t.Fatalf("Read after sync: %v", err)
	}
	if !bytes.Equal(got, []byte("from-other")) {
		t.Fatalf("Read after sync = %q, want %q", got, "from-other")
	}
}

func TestSyncWithKeepSelfNeverOverwrites(t *testing.T) {
	self := newTestClient(t)
	other := newTestClient(t)
	hint := make([]byte, 24)

	if err := self.Vault([]byte("wasp")).Write([]byte("seed"), []byte("mine"), hint); err != nil {
		t.Fatalf("self write: %v", err)
	}
	if err := other.Vault([]byte("wasp")).Write([]byte("seed"), []byte("theirs"), hint); err != nil {
		t.Fatalf("other write: %v", err)
	}

	cfg := SyncConfig{
		Policy:  KeepSelf,
		Vaults:  []VaultMapping{{SourcePath: []byte("wasp")}},
		Records: []vault.Location{vault.NewGenericLocation([]byte("wasp"), []byte("seed"))},
	}
	if err := self.SyncWith(other, cfg); err != nil {
		t.Fatalf("SyncWith: %v", err)
	}

	got, err := self.Vault([]byte("wasp")).Read([]byte("seed"))
	if err != nil {
		t.Fatalf("Read after sync: %v", err)
	}
	if !bytes.Equal(got, []byte("mine")) {
		t.Fatalf("Read after sync = %q, want %q (KeepSelf must not overwrite)", got, "mine")
	}
}

func TestSyncWithKeepNewerComparesCounters(t *testing.T) {
	self := newTestClient(t)
	other := newTestClient(t)
	hint := make([]byte, 24)

	// self writes twice (counter 2), other writes once (counter 1): self is newer.
	if err := self.Vault([]byte("path")).WriteCounter(0, []byte("s0"), hint); err != nil {
		t.Fatalf("self write 0: %v", err)
	}
	if err := self.Vault([]byte("path")).WriteCounter(0, []byte("s1"), hint); err != nil {
		t.Fatalf("self write 1: %v", err)
	}
	if err := other.Vault([]byte("path")).WriteCounter(0, []byte("o0"), hint); err != nil {
		t.Fatalf("other write: %v", err)
	}

	cfg := SyncConfig{
		Policy:  KeepNewer,
		Vaults:  []VaultMapping{{SourcePath: []byte("path")}},
		Records: []vault.Location{vault.NewCounterLocation([]byte("path"), 0)},
	}
	if err := self.SyncWith(other, cfg); err != nil {
		t.Fatalf("SyncWith: %v", err)
	}

	got, err := self.Vault([]byte("path")).ReadCounter(0)
	if err != nil {
		t.Fatalf("Read after sync: %v", err)
	}
	if !bytes.Equal(got, []byte("s1")) {
		t.Fatalf("Read after sync = %q, want %q (self was newer, must not be overwritten)", got, "s1")
	}
}

func TestSyncWithVaultRename(t *testing.T) {
	self := newTestClient(t)
	other := newTestClient(t)
	hint := make([]byte, 24)

	if err := other.Vault([]byte("src-vault")).Write([]byte("seed"), []byte("payload"), hint); err != nil {
		t.Fatalf("other write: %v", err)
	}

	cfg := SyncConfig{
		Policy:  KeepOther,
		Vaults:  []VaultMapping{{SourcePath: []byte("src-vault"), DestPath: []byte("dest-vault")}},
		Records: []vault.Location{vault.NewGenericLocation([]byte("src-vault"), []byte("seed"))},
	}
	if err := self.SyncWith(other, cfg); err != nil {
		t.Fatalf("SyncWith: %v", err)
	}

	if _, err := self.Vault([]byte("src-vault")).Read([]byte("seed")); err == nil {
		t.Fatal("record imported under source vault path, want dest path only")
	}
	got, err := self.Vault([]byte("dest-vault")).Read([]byte("seed"))
	if err != nil {
		t.Fatalf("Read from renamed vault: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Read from renamed vault = %q, want %q", got, "payload")
	}
}

func TestSyncWithSourceVaultKeyNeverImported(t *testing.T) {
	self := newTestClient(t)
	other := newTestClient(t)
	hint := make([]byte, 24)

	if err := other.Vault([]byte("wasp")).Write([]byte("seed"), []byte("payload"), hint); err != nil {
		t.Fatalf("other write: %v", err)
	}

	cfg := SyncConfig{
		Policy:  KeepOther,
		Vaults:  []VaultMapping{{SourcePath: []byte("wasp")}},
		Records: []vault.Location{vault.NewGenericLocation([]byte("wasp"), []byte("seed"))},
	}
	if err := self.SyncWith(other, cfg); err != nil {
		t.Fatalf("SyncWith: %v", err)
	}

	selfVid, err := self.VaultIDFor([]byte("wasp"))
	if err != nil {
		t.Fatalf("VaultIDFor: %v", err)
	}
	otherVid, err := other.VaultIDFor([]byte("wasp"))
	if err != nil {
		t.Fatalf("VaultIDFor: %v", err)
	}

	selfKeys, err := self.Keys().Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	otherKeys, err := other.Keys().Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if bytes.Equal(selfKeys[selfVid], otherKeys[otherVid]) {
		t.Fatal("destination vault key equals source vault key; source key must never be imported")
	}
}
