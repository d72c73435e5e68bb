// Package testutil provides shared test helpers for setting up vaults
// and index stores.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/halvar/mdn/internal/index"
	"github.com/halvar/mdn/internal/storage"
)

// TestStore creates a temporary index store that is automatically
// cleaned up.
func TestStore(t *testing.T) *index.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mdn-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	os.Remove(dbFile.Name())
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	vault, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, vault
}

// WriteNote writes a well-formed note with the given id.
func WriteNote(t *testing.T, vault storage.Provider, id int, title, group, body string) {
	t.Helper()
	content := fmt.Sprintf("---\ntitle: %s\ngroup: %s\n---\n%s\n", title, group, body)
	if err := vault.Write(id, []byte(content)); err != nil {
		t.Fatalf("write note %d: %v", id, err)
	}
}

// SilentLogger returns a logger that discards everything.
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
