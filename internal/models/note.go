// Package models defines the domain types for mdn.
package models

import (
	"fmt"
	"time"
)

// Entry is the persisted projection of one note: everything the index
// needs to answer list/filter queries without touching the note file.
type Entry struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Group       string    `json:"group"`
	Tags        []string  `json:"tags"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// FileInfo is the stat-level view of a note file used for reconciliation.
// Producing it never requires reading the file's content.
type FileInfo struct {
	ID          int
	Path        string // relative to the vault root
	Fingerprint string
	ModTime     time.Time
	Size        int64
}

// Fingerprint builds the cheap change-detection token for a note file.
// It is derived from stat data only, so comparing fingerprints across
// runs costs O(1) per file.
func Fingerprint(modTime time.Time, size int64) string {
	return fmt.Sprintf("%d:%d", modTime.UnixNano(), size)
}

// Recency records the ids behind the symbolic tokens _c, _e and _s.
// The zero value means "never"; note ids start at 1.
type Recency struct {
	LastCreated int `json:"last_created"`
	LastEdited  int `json:"last_edited"`
	LastShown   int `json:"last_shown"`
}
