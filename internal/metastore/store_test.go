package metastore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docsentry/internal/vectorstore"
)

type record struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func TestStore_PutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open[record](path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, ok := s.Get(0); ok {
		t.Fatalf("Get on empty store should report absent")
	}

	err = s.PutAll(map[uint64]record{
		0: {Name: "a.pdf", Content: "first"},
		1: {Name: "a.pdf", Content: "second"},
	})
	if err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	rec, ok := s.Get(1)
	if !ok || rec.Content != "second" {
		t.Fatalf("Get(1) = %+v, %v; want content=second", rec, ok)
	}
	if _, ok := s.Get(2); ok {
		t.Fatalf("Get(2) should be absent")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	// Close and Reopen (Persistence)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s2, err := Open[record](path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	rec, ok = s2.Get(0)
	if !ok || rec.Name != "a.pdf" || rec.Content != "first" {
		t.Fatalf("Get(0) after reopen = %+v, %v", rec, ok)
	}
}

func TestStore_Reset(t *testing.T) {
	s, err := Open[record](filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	s.PutAll(map[uint64]record{0: {Name: "x"}})
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len after Reset = %d, want 0", s.Len())
	}
	if _, ok := s.Get(0); ok {
		t.Fatalf("record survived Reset")
	}
	if err := s.PutAll(map[uint64]record{0: {Name: "y"}}); err != nil {
		t.Fatalf("PutAll after Reset failed: %v", err)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := Open[record](path)
	if !errors.Is(err, vectorstore.ErrCorruptIndex) {
		t.Fatalf("Open on garbage err = %v, want ErrCorruptIndex", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.db")
	if Exists(path) {
		t.Fatalf("Exists reported a missing file")
	}
	s, err := Open[record](path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()
	if !Exists(path) {
		t.Fatalf("Exists missed the created file")
	}
}
