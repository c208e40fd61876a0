// Package storage defines the artifact store port (interface).
package storage

import (
	"context"
	"io"
)

// ArtifactStore persists uploaded diagnostic artifacts and returns an opaque
// reference the analyzer can resolve. The core never reads artifacts itself.
type ArtifactStore interface {
	// Save writes the artifact and returns its reference (path or URL).
	// filename is the client-supplied name and must be sanitized by the
	// implementation before use.
	Save(ctx context.Context, patientID, filename string, r io.Reader) (ref string, err error)
}
