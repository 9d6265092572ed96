package vectorstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")

	idx, _ := New(3)
	rows := [][]float32{{0, 1.5, -2.25}, {3.75, 0, 1e-7}, {-1, -1, -1}}
	for _, r := range rows {
		if _, err := idx.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Dim() != 3 || loaded.Size() != len(rows) {
		t.Fatalf("loaded dim=%d size=%d, want 3 and %d", loaded.Dim(), loaded.Size(), len(rows))
	}
	for i, want := range rows {
		got, ok := loaded.Vector(uint64(i))
		if !ok {
			t.Fatalf("Vector(%d) missing after load", i)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("row %d[%d] = %v, want %v", i, j, got[j], want[j])
			}
		}
	}

	id, err := loaded.Append([]float32{9, 9, 9})
	if err != nil || id != uint64(len(rows)) {
		t.Fatalf("Append after load = %d, %v; want %d, nil", id, err, len(rows))
	}
}

func TestSaveLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	idx, _ := New(100)
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Size() != 0 || loaded.Dim() != 100 {
		t.Fatalf("loaded size=%d dim=%d, want 0 and 100", loaded.Size(), loaded.Dim())
	}
}

func TestLoad_Absent(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, ErrIndexAbsent) {
		t.Fatalf("Load missing err = %v, want ErrIndexAbsent", err)
	}
	if errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("absent file must not be reported as corrupt")
	}
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()

	idx, _ := New(2)
	idx.Append([]float32{1, 2})
	idx.Append([]float32{3, 4})
	good, _ := idx.MarshalBinary()

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'

	zeroDim := append([]byte(nil), good...)
	for i := 8; i < 16; i++ {
		zeroDim[i] = 0
	}

	cases := map[string][]byte{
		"short":     good[:10],
		"magic":     badMagic,
		"zero-dim":  zeroDim,
		"truncated": good[:len(good)-3],
		"trailing":  append(append([]byte(nil), good...), 0, 0, 0, 0),
	}
	for name, data := range cases {
		path := filepath.Join(dir, name+".bin")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := Load(path); !errors.Is(err, ErrCorruptIndex) {
			t.Errorf("%s: Load err = %v, want ErrCorruptIndex", name, err)
		}
	}
}

func TestSave_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.bin")
	idx, _ := New(1)
	idx.Append([]float32{1})
	idx.Append([]float32{2})
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	idx.Reset(1)
	if err := idx.Save(path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Size() != 0 {
		t.Fatalf("size after overwrite = %d, want 0", loaded.Size())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected only the index file in dir, found %d entries", len(entries))
	}
}
