// Package metastore keeps the id -> record side table that accompanies a
// vector index. Records live in a single bbolt bucket keyed by the vector id.
package metastore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"docsentry/internal/vectorstore"
)

var bucketRecords = []byte("records")

// Store maps vector ids to records of type R. Values are stored as JSON.
type Store[R any] struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if needed) the metadata database at path. An existing
// file bbolt cannot open is reported as vectorstore.ErrCorruptIndex.
func Open[R any](path string) (*Store[R], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	_, statErr := os.Stat(path)
	existed := statErr == nil

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		if existed && !errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: metadata %s: %v", vectorstore.ErrCorruptIndex, path, err)
		}
		return nil, fmt.Errorf("failed to open metadata %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata %s: %w", path, err)
	}

	return &Store[R]{db: db, path: path}, nil
}

// Exists reports whether a metadata file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// Get returns the record for id. A missing or undecodable record is reported
// as absent, never as an error.
func (s *Store[R]) Get(id uint64) (R, bool) {
	var rec R
	found := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get(key(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return rec, found
}

// PutAll writes every record in a single transaction: either all of them
// are committed or none are.
func (s *Store[R]) PutAll(records map[uint64]R) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for id, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %d: %w", id, err)
			}
			if err := b.Put(key(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset drops every record.
func (s *Store[R]) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketRecords)
		return err
	})
}

// Len returns the number of stored records.
func (s *Store[R]) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n
}

// Path returns the database file path.
func (s *Store[R]) Path() string {
	return s.path
}

// Close releases the database file lock.
func (s *Store[R]) Close() error {
	return s.db.Close()
}

func key(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}
