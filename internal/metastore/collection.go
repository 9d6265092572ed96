package metastore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"docsentry/internal/vectorstore"
)

// Collection pairs a flat vector index file with its metadata store. Appended
// vectors get their records staged in memory until Commit, which saves the
// vector file and then writes all staged records in one transaction.
//
// Collection does no locking; the owning handle serialises writers.
type Collection[R any] struct {
	Index *vectorstore.FlatIndex
	Meta  *Store[R]

	vectorsPath string
	staged      map[uint64]R
}

// OpenCollection loads the pair when both files exist. If either is missing it
// starts an empty index of dimension dim, clears any orphaned records and
// writes the empty vector file so a stale half cannot come back on reopen.
// A corrupt vector file or metadata database is returned as ErrCorruptIndex.
func OpenCollection[R any](vectorsPath, metaPath string, dim int) (*Collection[R], error) {
	_, err := os.Stat(vectorsPath)
	vectorsPresent := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", vectorsPath, err)
	}
	metaPresent := Exists(metaPath)

	meta, err := Open[R](metaPath)
	if err != nil {
		return nil, err
	}

	var index *vectorstore.FlatIndex
	if vectorsPresent && metaPresent {
		index, err = vectorstore.Load(vectorsPath)
	} else {
		index, err = vectorstore.New(dim)
		if err == nil {
			err = meta.Reset()
		}
		if err == nil {
			err = index.Save(vectorsPath)
		}
	}
	if err != nil {
		meta.Close()
		return nil, err
	}

	return &Collection[R]{
		Index:       index,
		Meta:        meta,
		vectorsPath: vectorsPath,
		staged:      make(map[uint64]R),
	}, nil
}

// Add appends vec and stages rec under the new id
func (c *Collection[R]) Add(vec []float32, rec R) (uint64, error) {
	id, err := c.Index.Append(vec)
	if err != nil {
		return 0, err
	}
	c.staged[id] = rec
	return id, nil
}

// Get returns the committed or staged record for id
func (c *Collection[R]) Get(id uint64) (R, bool) {
	if rec, ok := c.staged[id]; ok {
		return rec, true
	}
	return c.Meta.Get(id)
}

// Staged is the number of records waiting for Commit
func (c *Collection[R]) Staged() int {
	return len(c.staged)
}

// Commit persists the vector file and the staged records
func (c *Collection[R]) Commit() error {
	if err := c.Index.Save(c.vectorsPath); err != nil {
		return err
	}
	if err := c.Meta.PutAll(c.staged); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	clear(c.staged)
	return nil
}

// Rollback discards everything appended at or after size along with its
// staged records. Committed records below size are untouched.
func (c *Collection[R]) Rollback(size int) error {
	for id := range c.staged {
		if id >= uint64(size) {
			delete(c.staged, id)
		}
	}
	return c.Index.Truncate(size)
}

// Reset empties both halves at dimension dim and persists immediately
func (c *Collection[R]) Reset(dim int) error {
	if err := c.Index.Reset(dim); err != nil {
		return err
	}
	clear(c.staged)
	if err := c.Meta.Reset(); err != nil {
		return fmt.Errorf("failed to reset metadata: %w", err)
	}
	return c.Index.Save(c.vectorsPath)
}

// Remove deletes both files of a pair without opening them. Missing files are ignored.
func Remove(vectorsPath, metaPath string) error {
	var errs []error
	for _, p := range []string{vectorsPath, metaPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the metadata database
func (c *Collection[R]) Close() error {
	return c.Meta.Close()
}
