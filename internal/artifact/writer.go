// File: internal/artifact/writer.go
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// pngSignature is the fixed 8-byte header of every PNG file.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrNotPNG is returned for empty data or data without a PNG header.
var ErrNotPNG = errors.New("data is not a PNG image")

// Writer stores screenshot artifacts below a base directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer resolving relative paths against baseDir. An empty
// baseDir means the working directory.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Resolve returns the absolute destination for path.
func (w *Writer) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("artifact path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand artifact path %q: %w", path, err)
	}
	if !filepath.IsAbs(expanded) {
		base, err := homedir.Expand(w.baseDir)
		if err != nil {
			return "", fmt.Errorf("failed to expand artifact directory %q: %w", w.baseDir, err)
		}
		expanded = filepath.Join(base, expanded)
	}
	return filepath.Abs(expanded)
}

// WritePNG writes data to path, replacing any existing file. The write goes through a
// temporary file in the same directory so readers never see a partial image.
// It returns the absolute path written.
func (w *Writer) WritePNG(path string, data []byte) (string, error) {
	if len(data) == 0 || !bytes.HasPrefix(data, pngSignature) {
		return "", ErrNotPNG
	}
	dest, err := w.Resolve(path)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return dest, nil
}
