package noteservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/query"
	"github.com/halvar/mdn/internal/storage"
	"github.com/halvar/mdn/internal/testutil"
)

func openTestService(t *testing.T) (*Service, storage.Provider) {
	t.Helper()
	_, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)

	svc, err := Open(vault, store, testutil.SilentLogger(), Options{
		EditorCmd:  "true {}",
		BrowserCmd: "true {}",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc, vault
}

func TestOpenRebuildsMissingIndex(t *testing.T) {
	_, vault := testutil.TestVault(t)
	testutil.WriteNote(t, vault, 1, "pre-existing", "g", "@tag")
	store := testutil.TestStore(t)

	svc, err := Open(vault, store, testutil.SilentLogger(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rows, err := svc.List(query.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Title != "pre-existing" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestNewAssignsSequentialIDs(t *testing.T) {
	svc, _ := openTestService(t)

	id1, err := svc.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id2, err := svc.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", id1, id2)
	}
	if rec := svc.Recency(); rec.LastCreated != id2 {
		t.Errorf("LastCreated = %d, want %d", rec.LastCreated, id2)
	}
}

func TestNewWithTemplate(t *testing.T) {
	svc, vault := openTestService(t)

	id, err := svc.New([]byte("---\ntitle: From template\ngroup: tpl\n---\nbody @t\n"))
	if err != nil {
		t.Fatal(err)
	}
	entry, err := svc.Entry(id)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Title != "From template" || entry.Group != "tpl" {
		t.Errorf("entry = %+v", entry)
	}
	if _, err := vault.Read(id); err != nil {
		t.Errorf("note file missing: %v", err)
	}
}

func TestResolveRecencyToken(t *testing.T) {
	svc, _ := openTestService(t)

	id, err := svc.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Resolve("_c")
	if err != nil || got != id {
		t.Errorf("Resolve(_c) = %d, %v; want %d", got, err, id)
	}

	if _, err := svc.Resolve("_e"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Resolve(_e) before any edit = %v, want ErrNotFound", err)
	}
}

func TestCat(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 1, "T", "g", "see ![pic](img.png)")

	full, err := svc.Cat(1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(full, "---") {
		t.Errorf("full cat lost the header: %q", full)
	}
	if !strings.Contains(full, vault.AssetsDir()) {
		t.Errorf("asset link not rewritten: %q", full)
	}

	body, err := svc.Cat(1, true)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body, "title:") {
		t.Errorf("no-header cat kept front matter: %q", body)
	}
}

func TestRemove(t *testing.T) {
	svc, vault := openTestService(t)

	id, err := svc.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Remove([]int{id}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := svc.Entry(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Entry after Remove = %v", err)
	}
	if _, err := vault.Read(id); err == nil {
		t.Error("note file survived Remove")
	}

	if err := svc.Remove([]int{99}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Remove(99) = %v, want ErrNotFound", err)
	}
}

func TestResolveMany(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 1, "alpha one", "g", "")
	testutil.WriteNote(t, vault, 2, "alpha two", "g", "")
	testutil.WriteNote(t, vault, 3, "beta", "h", "")
	if _, err := svc.ReconcileNow(); err != nil {
		t.Fatal(err)
	}

	// No patterns: everything matching the filter.
	ids, err := svc.ResolveMany(nil, query.Filter{Group: "g"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v", ids)
	}

	// Single numeric pattern: literal id.
	ids, err = svc.ResolveMany([]string{"3"}, query.Filter{})
	if err != nil || len(ids) != 1 || ids[0] != 3 {
		t.Errorf("ids = %v, %v", ids, err)
	}

	// Single title pattern: filter match, possibly several.
	ids, err = svc.ResolveMany([]string{"alpha"}, query.Filter{})
	if err != nil || len(ids) != 2 {
		t.Errorf("ids = %v, %v", ids, err)
	}

	// Multiple patterns: each resolves to exactly one.
	ids, err = svc.ResolveMany([]string{"beta", "1"}, query.Filter{})
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Errorf("ids = %v, %v", ids, err)
	}
}

func TestReconcileNowPicksUpExternalEdits(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 1, "external", "g", "@x")

	report, err := svc.ReconcileNow()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Added) != 1 || report.Added[0] != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, err := svc.Entry(1); err != nil {
		t.Errorf("Entry after reconcile: %v", err)
	}
}

func TestRegenerate(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 4, "good", "g", "")
	if err := vault.Write(5, []byte("broken note\n")); err != nil {
		t.Fatal(err)
	}
	testutil.WriteNote(t, vault, 7, "also good", "g", "")

	issues, err := svc.Regenerate()
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if len(issues) != 1 || issues[0].ID != 5 {
		t.Errorf("issues = %+v", issues)
	}

	// NextID must jump past the highest indexed id.
	id, err := svc.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 8 {
		t.Errorf("next id = %d, want 8", id)
	}
}

func TestRenderHTML(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 1, "Render me", "g", "# Heading")

	if err := svc.RenderHTML(1); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	data, err := os.ReadFile(vault.HTMLPath(1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Render me") {
		t.Error("rendered page missing title")
	}
}

func TestEditUpdatesRecencyAndIndex(t *testing.T) {
	svc, vault := openTestService(t)
	testutil.WriteNote(t, vault, 1, "before", "g", "")
	if _, err := svc.ReconcileNow(); err != nil {
		t.Fatal(err)
	}

	// The "editor" rewrites the note in place.
	svc.opts.EditorCmd = `sh -c 'printf -- "---\ntitle: after\ngroup: g\n---\nnew body\n" > {}'`
	if err := svc.Edit(context.Background(), 1); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	entry, err := svc.Entry(1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Title != "after" {
		t.Errorf("title = %q, want after", entry.Title)
	}
	if rec := svc.Recency(); rec.LastEdited != 1 {
		t.Errorf("LastEdited = %d", rec.LastEdited)
	}
}
