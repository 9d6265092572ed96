package vectorstore

import (
	"fmt"
	"sort"
)

// FlatIndex is an append-only, in-memory array of fixed-dimension vectors
// searched by brute force. Vector ids are insertion ordinals.
//
// FlatIndex does no locking; the handle owning it serializes writers.
type FlatIndex struct {
	dim  int
	data []float32 // row-major, len == size*dim
}

// New creates an empty index for vectors of the given dimension
func New(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim returns the dimension of the index
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Size returns the number of stored vectors
func (f *FlatIndex) Size() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Append stores a vector and returns its id, which is always the prior size.
func (f *FlatIndex) Append(vector []float32) (uint64, error) {
	if len(vector) != f.dim {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, f.dim, len(vector))
	}
	id := uint64(f.Size())
	f.data = append(f.data, vector...)
	return id, nil
}

// Truncate drops every vector with id >= size
func (f *FlatIndex) Truncate(size int) error {
	if size < 0 || size > f.Size() {
		return fmt.Errorf("truncate to %d: index holds %d vectors", size, f.Size())
	}
	f.data = f.data[:size*f.dim]
	return nil
}

// Vector retrieves a copy of a stored vector by id
func (f *FlatIndex) Vector(id uint64) ([]float32, bool) {
	if id >= uint64(f.Size()) {
		return nil, false
	}
	out := make([]float32, f.dim)
	copy(out, f.row(int(id)))
	return out, true
}

// Search scans every stored vector and returns the min(k, size) closest
// ones ordered by ascending squared L2 distance, ties broken by lower id.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	size := f.Size()
	if size == 0 {
		return nil, ErrEmptyStore
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, size)
	for i := 0; i < size; i++ {
		hits[i] = Hit{ID: uint64(i), Distance: SquaredL2(query, f.row(i))}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	if k > size {
		k = size
	}
	return hits[:k], nil
}

// Reset discards all vectors; the next Append returns id 0.
func (f *FlatIndex) Reset(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dim: %d", dim)
	}
	f.dim = dim
	f.data = nil
	return nil
}

func (f *FlatIndex) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}
