package vectorstore

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyStore is returned when searching a store that holds no vectors.
	ErrEmptyStore = errors.New("vector store is empty")

	// ErrCorruptIndex is returned when a persisted index exists but cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt vector index")

	// ErrIndexAbsent is returned by Load when no persisted index exists yet.
	ErrIndexAbsent = errors.New("vector index absent")
)

// Hit is a single nearest-neighbour result.
type Hit struct {
	ID       uint64  `json:"id"`
	Distance float32 `json:"distance"`
}

// VectorStore defines the interface for vector storage and exact retrieval
type VectorStore interface {
	// Append stores a vector and returns its sequential id
	Append(vector []float32) (uint64, error)

	// Search returns the k nearest vectors by squared L2 distance
	Search(query []float32, k int) ([]Hit, error)

	// Vector returns a copy of the stored vector with the given id
	Vector(id uint64) ([]float32, bool)

	// Size returns the number of vectors in the store
	Size() int

	// Dim returns the dimension every stored vector has
	Dim() int

	// Reset discards all vectors and restarts ids at 0
	Reset(dim int) error

	// Save persists the full store to path
	Save(path string) error
}

var _ VectorStore = (*FlatIndex)(nil)
