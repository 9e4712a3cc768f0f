package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemStoreWriteReadDelete(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	if err := s.Write(WriteRequest{Kind: KindSnapshot, ID: "a", Bytes: []byte("hello")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	res, err := s.Read(KindSnapshot, "a")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(res.Bytes) != "hello" {
		t.Fatalf("Bytes = %q, want %q", res.Bytes, "hello")
	}

	ids, err := s.List(KindSnapshot)
	if err != nil || len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("List = %v, %v", ids, err)
	}

	if err := s.Delete(DeleteRequest{Kind: KindSnapshot, ID: "a"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(KindSnapshot, "a"); err != ErrNotFound {
		t.Fatalf("Read after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemStoreReadMissingKind(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	if _, err := s.Read(KindSnapshot, "missing"); err != ErrNotFound {
		t.Fatalf("Read missing: err = %v, want ErrNotFound", err)
	}
}

func TestBoltStoreWriteReadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	if err := s.Write(WriteRequest{Kind: KindSnapshot, ID: "client-1", Bytes: []byte("payload")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	res, err := s.Read(KindSnapshot, "client-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(res.Bytes) != "payload" {
		t.Fatalf("Bytes = %q", res.Bytes)
	}

	if err := s.Delete(DeleteRequest{Kind: KindSnapshot, ID: "client-1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(KindSnapshot, "client-1"); err != ErrNotFound {
		t.Fatalf("Read after delete: err = %v, want ErrNotFound", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "stronghold.db")); err != nil {
		t.Fatalf("expected db file to exist: %v", err)
	}
}
