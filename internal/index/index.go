// Package index maintains the persistent note index: an id→entry mapping
// with derived group and tag views, a SQLite-backed store, and the
// reconciliation logic that keeps the index consistent with the vault.
package index

import (
	"sort"

	"github.com/halvar/mdn/internal/models"
)

// Index is the in-memory id→entry mapping plus derived read-only views.
// The views are always recomputed from the primary mapping, never patched
// independently, so they cannot diverge from it.
type Index struct {
	entries map[int]models.Entry

	// Derived views, rebuilt lazily after any mutation.
	byGroup map[string][]int
	byTag   map[string][]int
	stale   bool
}

// New returns an empty Index.
func New() *Index {
	return &Index{entries: make(map[int]models.Entry), stale: true}
}

// Get returns the entry for id, if present.
func (ix *Index) Get(id int) (models.Entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Put inserts or replaces an entry and invalidates the derived views.
func (ix *Index) Put(e models.Entry) {
	ix.entries[e.ID] = e
	ix.stale = true
}

// Remove deletes an entry and invalidates the derived views. Removing an
// absent id is a no-op.
func (ix *Index) Remove(id int) {
	delete(ix.entries, id)
	ix.stale = true
}

// Len returns the number of indexed notes.
func (ix *Index) Len() int { return len(ix.entries) }

// IDs returns all note ids in ascending order. Ids are assigned at
// creation and never reused, so this is creation order.
func (ix *Index) IDs() []int {
	out := make([]int, 0, len(ix.entries))
	for id := range ix.entries {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Entries returns all entries in ascending id order.
func (ix *Index) Entries() []models.Entry {
	ids := ix.IDs()
	out := make([]models.Entry, len(ids))
	for i, id := range ids {
		out[i] = ix.entries[id]
	}
	return out
}

// ByGroup returns the derived group→ids view. The returned map is shared;
// callers must not mutate it.
func (ix *Index) ByGroup() map[string][]int {
	ix.refresh()
	return ix.byGroup
}

// ByTag returns the derived tag→ids view. The returned map is shared;
// callers must not mutate it.
func (ix *Index) ByTag() map[string][]int {
	ix.refresh()
	return ix.byTag
}

// refresh recomputes the derived views from the primary mapping.
func (ix *Index) refresh() {
	if !ix.stale {
		return
	}
	ix.byGroup = make(map[string][]int)
	ix.byTag = make(map[string][]int)
	for _, id := range ix.IDs() {
		e := ix.entries[id]
		ix.byGroup[e.Group] = append(ix.byGroup[e.Group], id)
		for _, t := range e.Tags {
			ix.byTag[t] = append(ix.byTag[t], id)
		}
	}
	ix.stale = false
}
