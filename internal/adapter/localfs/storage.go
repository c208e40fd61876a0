// Package localfs implements the artifact store port on the local filesystem.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store saves uploaded artifacts under a single directory, named
// {patient}_{uuid}_{filename} so concurrent uploads never collide.
type Store struct {
	dir string
}

// New creates the store and its directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the artifact and returns its path.
func (s *Store) Save(ctx context.Context, patientID, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := sanitizeName(filename); err != nil {
		return "", fmt.Errorf("artifact filename: %w", err)
	}
	if err := sanitizeName(patientID); err != nil {
		return "", fmt.Errorf("patient id: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s", patientID, uuid.NewString(), filename)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // G304: name components are sanitized above
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	return path, nil
}

// sanitizeName validates a name is safe for use in file paths.
// It rejects names containing path separators, dot-prefixes, or other
// traversal patterns.
func sanitizeName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > 128 {
		return errors.New("name too long (max 128 chars)")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("name must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return errors.New("name must not contain '..'")
	}
	if name[0] == '.' {
		return errors.New("name must not start with '.'")
	}
	if filepath.Clean(name) != name {
		return errors.New("name contains invalid path characters")
	}
	return nil
}
