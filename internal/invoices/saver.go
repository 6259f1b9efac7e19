// Package invoices persists downloaded invoice attachments on disk,
// keyed by transaction identity.
package invoices

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// unsafeChars matches everything that is not safe in a local filename.
var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// Saver writes invoice files under a base directory.
type Saver struct {
	dir string
}

// NewSaver creates a Saver rooted at dir.
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir}
}

// SafeFilename replaces every character outside [A-Za-z0-9_.-] with an
// underscore.
func SafeFilename(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Save writes attachment data for a transaction and returns the
// sanitized filename and the full path it was written to.
func (s *Saver) Save(transactionID, filename string, data []byte) (string, string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating invoice directory %s: %w", s.dir, err)
	}

	safe := SafeFilename(filename)
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s", transactionID, safe))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("writing invoice %s: %w", path, err)
	}
	return safe, path, nil
}
