package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"boletodesk/internal/mockbackend"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WritePDF writes a collection PDF with one page per document into dir.
func WritePDF(t testing.TB, dir, name string, docs ...mockbackend.DocumentFields) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, name), mockbackend.BuildPDF(docs...))
}

// WriteNFe writes an NF-e XML for note into dir.
func WriteNFe(t testing.TB, dir, name string, note mockbackend.NoteFields) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, name), mockbackend.BuildNFe(note))
}

// Amount returns a pointer to v for fixture fields.
func Amount(v float64) *float64 {
	return &v
}
