package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/models"
	"github.com/halvar/mdn/internal/parser"
	"github.com/halvar/mdn/internal/storage"
)

// ChangeReport describes what a reconciliation pass changed.
type ChangeReport struct {
	Added    []int
	Modified []int
	Deleted  []int
	// Issues collects per-note parse failures. They never abort the pass;
	// a modified note that fails to parse keeps its previous entry so a
	// transient typo cannot drop the note from every view.
	Issues []*apperr.MalformedNoteError
}

// Empty reports whether the pass changed nothing and saw no issues.
func (r ChangeReport) Empty() bool {
	return len(r.Added) == 0 && len(r.Modified) == 0 && len(r.Deleted) == 0 && len(r.Issues) == 0
}

// Reconcile brings ix up to date with the vault:
//   - files whose id is missing from the index are parsed and inserted
//   - files whose fingerprint differs are reparsed and replaced
//   - files with a matching fingerprint are skipped without being read
//   - entries whose file is gone are pruned
//
// The cost is one stat scan plus one read per changed note; an unchanged
// vault costs no file reads at all. IO failures propagate; parse failures
// are collected in the report.
func Reconcile(ix *Index, vault storage.Provider) (ChangeReport, error) {
	files, err := vault.List()
	if err != nil {
		return ChangeReport{}, fmt.Errorf("index: reconcile: %w", err)
	}

	var report ChangeReport
	onDisk := make(map[int]struct{}, len(files))
	for _, f := range files {
		onDisk[f.ID] = struct{}{}

		prev, known := ix.Get(f.ID)
		if known && prev.Fingerprint == f.Fingerprint {
			continue
		}

		entry, err := parseEntry(vault, f)
		if err != nil {
			var malformed *apperr.MalformedNoteError
			if errors.As(err, &malformed) {
				report.Issues = append(report.Issues, malformed)
				continue
			}
			return ChangeReport{}, err
		}

		if known {
			entry.CreatedAt = prev.CreatedAt
			report.Modified = append(report.Modified, f.ID)
		} else {
			report.Added = append(report.Added, f.ID)
		}
		ix.Put(entry)
	}

	for _, id := range ix.IDs() {
		if _, ok := onDisk[id]; !ok {
			ix.Remove(id)
			report.Deleted = append(report.Deleted, id)
		}
	}

	sort.Ints(report.Added)
	sort.Ints(report.Modified)
	sort.Ints(report.Deleted)
	return report, nil
}

// Rebuild performs a full scan of the vault, reparsing every note
// regardless of fingerprints. This is the recovery path for a corrupt or
// diverged index; malformed notes are skipped and reported.
func Rebuild(vault storage.Provider) (*Index, []*apperr.MalformedNoteError, error) {
	files, err := vault.List()
	if err != nil {
		return nil, nil, fmt.Errorf("index: rebuild: %w", err)
	}

	ix := New()
	var issues []*apperr.MalformedNoteError
	for _, f := range files {
		entry, err := parseEntry(vault, f)
		if err != nil {
			var malformed *apperr.MalformedNoteError
			if errors.As(err, &malformed) {
				issues = append(issues, malformed)
				continue
			}
			return nil, nil, err
		}
		ix.Put(entry)
	}
	return ix, issues, nil
}

// parseEntry reads and parses one note file into an index entry. Parse
// failures come back as *apperr.MalformedNoteError; read failures as
// plain wrapped IO errors.
func parseEntry(vault storage.Provider, f models.FileInfo) (models.Entry, error) {
	data, err := vault.Read(f.ID)
	if err != nil {
		return models.Entry{}, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return models.Entry{}, &apperr.MalformedNoteError{ID: f.ID, Reason: err.Error()}
	}
	return models.Entry{
		ID:          f.ID,
		Title:       res.Title,
		Group:       res.Group,
		Tags:        res.Tags,
		Fingerprint: f.Fingerprint,
		CreatedAt:   f.ModTime,
		ModifiedAt:  f.ModTime,
	}, nil
}
