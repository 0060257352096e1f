// Package storage defines the vault file-system abstraction.
package storage

import (
	"errors"

	"github.com/starford/curator/internal/models"
)

// ErrInvalidPath marks paths that can never name a vault note
// (absolute, escaping the root, or containing NUL bytes).
var ErrInvalidPath = errors.New("storage: invalid path")

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Stat returns metadata for a single file. Missing files wrap fs.ErrNotExist.
	Stat(path string) (models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
}
