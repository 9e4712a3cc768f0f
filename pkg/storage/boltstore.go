package storage

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// knownBuckets lists the bbolt bucket name of every Kind. Unlike the engine's
// in-memory map, bbolt needs a bucket created up front for every kind it
// will ever see.
var knownBuckets = [][]byte{
	[]byte(KindSnapshot),
	[]byte(KindTransaction),
	[]byte(KindBlob),
}

// BoltStore is a durable Backend backed by a single go.etcd.io/bbolt
// file, one bucket per Kind. It is the engine's optional durable
// storage backend for callers who want NewEngine itself to own
// persistence rather than handling the bytes Commit returns.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at
// <dataDir>/stronghold.db and ensures every known bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "stronghold.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range knownBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Write(req WriteRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(req.Kind))
		if b == nil {
			var err error
			b, err = tx.CreateBucketIfNotExists([]byte(req.Kind))
			if err != nil {
				return err
			}
		}
		return b.Put([]byte(req.ID), req.Bytes)
	})
}

func (s *BoltStore) Read(kind Kind, id string) (ReadResult, error) {
	var result ReadResult
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return ErrNotFound
		}
		val := b.Get([]byte(id))
		if val == nil {
			return ErrNotFound
		}
		out := make([]byte, len(val))
		copy(out, val)
		result = ReadResult{Kind: kind, ID: id, Bytes: out}
		return nil
	})
	return result, err
}

func (s *BoltStore) Delete(req DeleteRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(req.Kind))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(req.ID))
	})
}

func (s *BoltStore) List(kind Kind) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
