package index

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/halvar/mdn/internal/storage"
)

// countingVault wraps a Provider and counts content reads, so tests can
// assert that unchanged notes are never opened.
type countingVault struct {
	storage.Provider
	reads int
}

func (c *countingVault) Read(id int) ([]byte, error) {
	c.reads++
	return c.Provider.Read(id)
}

func newTestVault(t *testing.T) (*countingVault, string) {
	t.Helper()
	root := t.TempDir()
	vault, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return &countingVault{Provider: vault}, root
}

func writeNote(t *testing.T, vault storage.Provider, id int, title, group, body string) {
	t.Helper()
	content := fmt.Sprintf("---\ntitle: %s\ngroup: %s\n---\n%s\n", title, group, body)
	if err := vault.Write(id, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileFromEmpty(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "one", "g", "@a")
	writeNote(t, vault, 2, "two", "g", "@b")

	ix := New()
	report, err := Reconcile(ix, vault)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !reflect.DeepEqual(report.Added, []int{1, 2}) {
		t.Errorf("Added = %v", report.Added)
	}
	if len(report.Modified)+len(report.Deleted)+len(report.Issues) != 0 {
		t.Errorf("unexpected changes: %+v", report)
	}
	if ix.Len() != 2 {
		t.Errorf("Len = %d", ix.Len())
	}
}

func TestReconcileIdempotent(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "one", "g", "body")

	ix := New()
	if _, err := Reconcile(ix, vault); err != nil {
		t.Fatal(err)
	}

	vault.reads = 0
	report, err := Reconcile(ix, vault)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Empty() {
		t.Errorf("second pass not empty: %+v", report)
	}
	if vault.reads != 0 {
		t.Errorf("unchanged vault read %d files, want 0", vault.reads)
	}
}

func TestReconcileAddModifyDelete(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "one", "g", "body")
	writeNote(t, vault, 2, "two", "g", "body")
	writeNote(t, vault, 3, "three", "g", "body")

	ix := New()
	if _, err := Reconcile(ix, vault); err != nil {
		t.Fatal(err)
	}
	created3, _ := ix.Get(3)

	// Delete 2, modify 3 (size changes, so the fingerprint changes even
	// with coarse mtimes), add 4.
	if err := vault.Delete(2); err != nil {
		t.Fatal(err)
	}
	writeNote(t, vault, 3, "three revised", "g", "a much longer body @new")
	writeNote(t, vault, 4, "four", "g", "body")

	report, err := Reconcile(ix, vault)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Added, []int{4}) {
		t.Errorf("Added = %v, want [4]", report.Added)
	}
	if !reflect.DeepEqual(report.Modified, []int{3}) {
		t.Errorf("Modified = %v, want [3]", report.Modified)
	}
	if !reflect.DeepEqual(report.Deleted, []int{2}) {
		t.Errorf("Deleted = %v, want [2]", report.Deleted)
	}

	got, _ := ix.Get(3)
	if got.Title != "three revised" {
		t.Errorf("title = %q", got.Title)
	}
	if !got.CreatedAt.Equal(created3.CreatedAt) {
		t.Errorf("CreatedAt changed on modification: %v -> %v", created3.CreatedAt, got.CreatedAt)
	}
	if _, ok := ix.Get(2); ok {
		t.Error("deleted note still indexed")
	}
}

func TestReconcileMalformedNewNote(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "good", "g", "body")
	if err := vault.Write(2, []byte("no front matter here\n")); err != nil {
		t.Fatal(err)
	}

	ix := New()
	report, err := Reconcile(ix, vault)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Issues) != 1 || report.Issues[0].ID != 2 {
		t.Fatalf("Issues = %+v", report.Issues)
	}
	if _, ok := ix.Get(2); ok {
		t.Error("malformed note should not be indexed")
	}
	if _, ok := ix.Get(1); !ok {
		t.Error("good note should be indexed")
	}
}

func TestReconcileMalformedModificationKeepsStaleEntry(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "good", "g", "body")

	ix := New()
	if _, err := Reconcile(ix, vault); err != nil {
		t.Fatal(err)
	}

	// Break the note; the size change guarantees a fingerprint change.
	if err := vault.Write(1, []byte("oops, the front matter is gone entirely\n")); err != nil {
		t.Fatal(err)
	}

	report, err := Reconcile(ix, vault)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 1 || report.Issues[0].ID != 1 {
		t.Fatalf("Issues = %+v", report.Issues)
	}
	if len(report.Modified) != 0 {
		t.Errorf("Modified = %v, want none", report.Modified)
	}
	got, ok := ix.Get(1)
	if !ok || got.Title != "good" {
		t.Errorf("stale entry = %+v, %v; want previous entry retained", got, ok)
	}
}

func TestRebuildIgnoresFingerprints(t *testing.T) {
	vault, _ := newTestVault(t)
	writeNote(t, vault, 1, "one", "g", "@a")
	writeNote(t, vault, 5, "five", "h", "@b")
	if err := vault.Write(9, []byte("broken\n")); err != nil {
		t.Fatal(err)
	}

	ix, issues, err := Rebuild(vault)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if ix.Len() != 2 {
		t.Errorf("Len = %d, want 2", ix.Len())
	}
	if len(issues) != 1 || issues[0].ID != 9 {
		t.Errorf("issues = %+v", issues)
	}
	if !reflect.DeepEqual(ix.IDs(), []int{1, 5}) {
		t.Errorf("IDs = %v", ix.IDs())
	}
}
