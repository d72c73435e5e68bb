// Package apperr defines the error taxonomy shared by the index core and
// its callers (CLI, web, MCP).
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a single-target resolution yields zero
	// matches. Callers format it for the user; it is not a system error.
	ErrNotFound = errors.New("not found")

	// ErrNoIndex is returned by Store.Load when no index exists yet.
	// Callers recover by rebuilding from the vault.
	ErrNoIndex = errors.New("index does not exist")

	// ErrAlreadyExists is returned when creating a note whose file is
	// already present on disk.
	ErrAlreadyExists = errors.New("already exists")
)

// MalformedNoteError reports a single note that could not be parsed.
// Batch operations collect these and carry on; a malformed note never
// aborts a rebuild or reconciliation.
type MalformedNoteError struct {
	ID     int
	Reason string
}

func (e *MalformedNoteError) Error() string {
	return fmt.Sprintf("note %d is malformed: %s", e.ID, e.Reason)
}

// CorruptIndexError reports an index database that exists but cannot be
// read. The recovery path is a full regenerate.
type CorruptIndexError struct {
	Err error
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("index is corrupt: %v", e.Err)
}

func (e *CorruptIndexError) Unwrap() error { return e.Err }

// InvalidFilterError reports a tag filter string that failed to compile.
// Token is the offending piece of input.
type InvalidFilterError struct {
	Token string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid tag filter near %q (maybe you missed an @?)", e.Token)
}
