package vectorstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

const (
	// File header (v1):
	//   0..7   magic "DSVEC001"
	//   8..15  dim (uint64)
	//   16..23 count (uint64)
	HeaderSize = 24

	float32Size = 4
)

var fileMagic = [8]byte{'D', 'S', 'V', 'E', 'C', '0', '0', '1'}

// MarshalBinary encodes the header followed by every row as little-endian float32.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, HeaderSize+len(f.data)*float32Size)
	copy(out[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(out[8:16], uint64(f.dim))
	binary.LittleEndian.PutUint64(out[16:24], uint64(f.Size()))

	off := HeaderSize
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += float32Size
	}
	return out, nil
}

// UnmarshalBinary restores the index from bytes produced by MarshalBinary.
// Any structural problem is reported as ErrCorruptIndex.
func (f *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: file too small for header: %d < %d", ErrCorruptIndex, len(data), HeaderSize)
	}
	if !bytes.Equal(data[:8], fileMagic[:]) {
		return fmt.Errorf("%w: magic mismatch", ErrCorruptIndex)
	}

	dim := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if dim == 0 || dim > math.MaxInt32 {
		return fmt.Errorf("%w: invalid dim %d", ErrCorruptIndex, dim)
	}

	body := uint64(len(data) - HeaderSize)
	rowBytes := dim * float32Size
	if count > body/rowBytes || count*rowBytes != body {
		return fmt.Errorf("%w: truncated or trailing data (count=%d dim=%d body=%d bytes)", ErrCorruptIndex, count, dim, body)
	}

	vals := make([]float32, count*dim)
	off := HeaderSize
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += float32Size
	}

	f.dim = int(dim)
	f.data = vals
	return nil
}

// Save writes the index to path through a temporary file and rename, so a
// crash never leaves a half-written index behind.
func (f *FlatIndex) Save(path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save. A missing file yields
// ErrIndexAbsent; an unreadable one yields ErrCorruptIndex.
func Load(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexAbsent, path)
		}
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}

	f := &FlatIndex{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
