// Package testutil provides helpers for testing pvm in isolation.
package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
)

// ZipEntry is a single file or directory to place in a test archive.
// Names ending in "/" are written as directories.
type ZipEntry struct {
	Name    string
	Content string
}

// SetupTestEnv points PVM_ROOT at a fresh temporary directory so tests never
// touch the user's real registry, and silences logging. It returns the root.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "pvm")
	t.Setenv("PVM_ROOT", root)

	log.SetHandler(discard.Default)
	return root
}

// WriteZip writes a zip archive containing entries to path.
// Entry names are stored verbatim, including unsafe ones.
func WriteZip(t *testing.T, path string, entries []ZipEntry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create archive directory: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(ZipBytes(t, entries)); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
}

// ZipBytes returns an in-memory zip archive containing entries.
func ZipBytes(t *testing.T, entries []ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate}
		header.SetMode(0o644)
		fw, err := w.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to add %q to archive: %v", entry.Name, err)
		}
		if entry.Content == "" {
			continue
		}
		if _, err := fw.Write([]byte(entry.Content)); err != nil {
			t.Fatalf("failed to write %q: %v", entry.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finalize archive: %v", err)
	}
	return buf.Bytes()
}
