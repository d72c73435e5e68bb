// Package storage defines the vault file-system abstraction.
package storage

import "github.com/halvar/mdn/internal/models"

// Provider is the interface for vault file operations. Note files live
// under md/ as <id>.md; rendered HTML under html/; binary assets under
// assets/.
type Provider interface {
	// List returns stat-level metadata for every note file. It never
	// reads file contents, so a full scan stays cheap.
	List() ([]models.FileInfo, error)
	// Stat returns metadata for a single note.
	Stat(id int) (models.FileInfo, error)
	// Read returns the raw bytes of a note.
	Read(id int) ([]byte, error)
	// Write atomically writes a note's content.
	Write(id int, content []byte) error
	// Delete removes a note file and its rendered HTML, if any.
	Delete(id int) error
	// NotePath returns the absolute path of a note file.
	NotePath(id int) string
	// HTMLPath returns the absolute path of a note's rendered HTML.
	HTMLPath(id int) string
	// WriteHTML atomically writes rendered HTML for a note.
	WriteHTML(id int, content []byte) error
	// AssetsDir returns the absolute path of the shared assets directory.
	AssetsDir() string
	// CopyAsset copies a local file into the assets directory under rel.
	CopyAsset(src, rel string) error
}
