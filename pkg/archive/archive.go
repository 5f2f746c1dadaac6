package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ProgressFunc is called after each archive entry is written
type ProgressFunc func(done, total int)

// Extractor reads and unpacks zip distributions
type Extractor struct {
	Progress ProgressFunc
}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Entries returns the names of all entries in the archive, in archive order
func (e *Extractor) Entries(archivePath string) ([]string, error) {
	reader, err := openZip(archivePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	return names, nil
}

// Extract extracts every entry of the archive into destDir.
// Callers are expected to run Validate on the entry names first; entries
// that would still resolve outside destDir are refused here as well.
func (e *Extractor) Extract(archivePath, destDir string) error {
	reader, err := openZip(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	destDir, err = filepath.Abs(destDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve destination directory")
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}

	total := len(reader.File)
	for i, file := range reader.File {
		if err := extractFile(file, destDir); err != nil {
			return err
		}
		if e.Progress != nil {
			e.Progress(i+1, total)
		}
	}

	return nil
}

// openZip opens a zip archive. Insecure entry names are reported by
// Validate instead of failing the open, so the caller can name the entry.
func openZip(archivePath string) (*zip.ReadCloser, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errors.Wrap(err, "failed to open zip archive")
	}
	return reader, nil
}

// extractFile writes a single zip entry below destDir
func extractFile(file *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(file.Name))

	// Ensure the target path is within destDir
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return fmt.Errorf("invalid path in archive: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return errors.Wrap(err, "failed to create directory")
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	fileReader, err := file.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open %s in archive", file.Name)
	}
	defer fileReader.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	targetFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}

	if _, err := io.Copy(targetFile, fileReader); err != nil {
		targetFile.Close()
		return errors.Wrapf(err, "failed to extract %s", file.Name)
	}

	return errors.Wrap(targetFile.Close(), "failed to close extracted file")
}
