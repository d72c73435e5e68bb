// Package noteservice coordinates the vault, the index store and the
// query engine on behalf of every caller (CLI, web, MCP). It owns the
// in-memory index and the recency state and serializes all mutation.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/index"
	"github.com/halvar/mdn/internal/models"
	"github.com/halvar/mdn/internal/parser"
	"github.com/halvar/mdn/internal/query"
	"github.com/halvar/mdn/internal/render"
	"github.com/halvar/mdn/internal/storage"
)

// DefaultTemplate is the content of a freshly created note. The user
// replaces title and group in their editor.
const DefaultTemplate = "---\ntitle: None\ngroup: None\n---\n"

// Options carries the external command templates. Each must contain a
// "{}" placeholder that is replaced with the file path.
type Options struct {
	EditorCmd  string
	BrowserCmd string
}

// Service owns the loaded index. Queries take the read lock; anything
// that mutates the index or the vault takes the write lock, so
// concurrent readers never observe a half-updated index.
type Service struct {
	vault  storage.Provider
	store  *index.Store
	logger *slog.Logger
	opts   Options

	mu sync.RWMutex
	ix *index.Index
	st index.State
}

// Open loads the index, rebuilding it from the vault when absent, and
// runs one reconciliation pass so the index reflects any out-of-band
// edits. A corrupt store propagates as *apperr.CorruptIndexError.
func Open(vault storage.Provider, store *index.Store, logger *slog.Logger, opts Options) (*Service, error) {
	s := &Service{vault: vault, store: store, logger: logger, opts: opts}

	ix, err := store.Load()
	switch {
	case errors.Is(err, apperr.ErrNoIndex):
		logger.Info("no index found, rebuilding from vault")
		var issues []*apperr.MalformedNoteError
		ix, issues, err = index.Rebuild(vault)
		if err != nil {
			return nil, err
		}
		s.logIssues(issues)
		if err := store.Save(ix); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		report, err := index.Reconcile(ix, vault)
		if err != nil {
			return nil, err
		}
		s.logIssues(report.Issues)
		if !report.Empty() {
			if err := store.Save(ix); err != nil {
				return nil, err
			}
		}
	}

	st, err := store.LoadState()
	if err != nil {
		return nil, err
	}
	// Never hand out an id at or below one already on disk.
	for _, id := range ix.IDs() {
		if id >= st.NextID {
			st.NextID = id + 1
		}
	}

	s.ix = ix
	s.st = st
	return s, nil
}

func (s *Service) logIssues(issues []*apperr.MalformedNoteError) {
	for _, issue := range issues {
		s.logger.Warn("skipped malformed note",
			slog.Int("id", issue.ID), slog.String("reason", issue.Reason))
	}
}

// Recency returns the current recency record.
func (s *Service) Recency() models.Recency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Recency
}

// List answers a metadata list query.
func (s *Service) List(f query.Filter) ([]query.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return query.NewEngine(s.ix, s.vault).List(f)
}

// SearchContent greps note contents, metadata-filtered first.
func (s *Service) SearchContent(ctx context.Context, pattern string, mode query.PatternMode, f query.Filter) ([]query.ContentHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return query.NewEngine(s.ix, s.vault).SearchContent(ctx, pattern, mode, f)
}

// Groups lists distinct group paths, fuzzy-filtered.
func (s *Service) Groups(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return query.NewEngine(s.ix, s.vault).Groups(pattern)
}

// Tags lists distinct tags, fuzzy-filtered.
func (s *Service) Tags(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return query.NewEngine(s.ix, s.vault).Tags(pattern)
}

// Resolve turns an id, fuzzy title or _c/_e/_s token into one note id.
func (s *Service) Resolve(token string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return query.NewEngine(s.ix, s.vault).ResolveOne(token, s.st.Recency)
}

// ResolveMany maps command arguments to note ids. No patterns means
// "everything matching the filter"; a single pattern is a numeric id or
// a title filter; several patterns resolve individually.
func (s *Service) ResolveMany(patterns []string, f query.Filter) ([]int, error) {
	if len(patterns) == 0 {
		patterns = []string{""}
	}
	if len(patterns) == 1 {
		if id, err := strconv.Atoi(patterns[0]); err == nil {
			return []int{id}, nil
		}
		f.Title = patterns[0]
		rows, err := s.List(f)
		if err != nil {
			return nil, err
		}
		return lo.Map(rows, func(r query.Row, _ int) int { return r.ID }), nil
	}
	ids := make([]int, 0, len(patterns))
	for _, p := range patterns {
		id, err := s.Resolve(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Entry returns the index entry for id.
func (s *Service) Entry(id int) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ix.Get(id)
	if !ok {
		return models.Entry{}, fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
	}
	return e, nil
}

// New creates a note from template (DefaultTemplate when nil), indexes
// it and records it as last created.
func (s *Service) New(template []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if template == nil {
		template = []byte(DefaultTemplate)
	}
	id := s.st.NextID

	if _, err := s.vault.Stat(id); err == nil {
		return 0, fmt.Errorf("note file %d: %w", id, apperr.ErrAlreadyExists)
	}
	if err := s.vault.Write(id, template); err != nil {
		return 0, err
	}
	if err := s.reindexLocked(id); err != nil {
		return 0, err
	}

	s.st.NextID = id + 1
	s.st.Recency.LastCreated = id
	if err := s.store.SaveState(s.st); err != nil {
		return 0, err
	}
	return id, nil
}

// Edit opens the note in the configured editor, re-rendering its HTML
// whenever the file changes on disk, then reindexes it and records it as
// last edited. A malformed result keeps the previous index entry and
// returns the parse error for the caller to report.
func (s *Service) Edit(ctx context.Context, id int) error {
	path := s.vault.NotePath(id)
	info, err := s.vault.Stat(id)
	if err != nil {
		return fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
	}

	cmdline := strings.Replace(s.opts.EditorCmd, "{}", path, 1)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("noteservice: start editor: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	lastSeen := info.ModTime
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

wait:
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("noteservice: editor: %w", err)
			}
			break wait
		case <-ticker.C:
			cur, statErr := s.vault.Stat(id)
			if statErr == nil && cur.ModTime.After(lastSeen) {
				lastSeen = cur.ModTime
				if renderErr := s.RenderHTML(id); renderErr != nil {
					s.logger.Warn("live render failed",
						slog.Int("id", id), slog.String("error", renderErr.Error()))
				}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.Recency.LastEdited = id
	if err := s.store.SaveState(s.st); err != nil {
		return err
	}
	if err := s.reindexLocked(id); err != nil {
		return err
	}
	return s.RenderHTML(id)
}

// Show makes sure the rendered HTML is fresh, opens it in the configured
// browser and records the note as last shown.
func (s *Service) Show(id int) error {
	info, err := s.vault.Stat(id)
	if err != nil {
		return fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
	}
	if stale(s.vault.HTMLPath(id), info.ModTime) {
		if err := s.RenderHTML(id); err != nil {
			return err
		}
	}

	cmdline := strings.Replace(s.opts.BrowserCmd, "{}", s.vault.HTMLPath(id), 1)
	if err := exec.Command("/bin/sh", "-c", cmdline).Start(); err != nil {
		return fmt.Errorf("noteservice: start browser: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Recency.LastShown = id
	return s.store.SaveState(s.st)
}

// Cat returns a note's source with asset links rewritten to absolute
// paths. With noHeader the front matter block is stripped.
func (s *Service) Cat(id int, noHeader bool) (string, error) {
	data, err := s.vault.Read(id)
	if err != nil {
		return "", err
	}
	content := string(data)
	if noHeader {
		res, err := parser.Parse(data)
		if err != nil {
			return "", &apperr.MalformedNoteError{ID: id, Reason: err.Error()}
		}
		content = res.Body
	}
	return render.AdjustLinks(strings.TrimSpace(content), s.vault.AssetsDir()), nil
}

// Remove deletes the given notes from the vault and the index.
func (s *Service) Remove(ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.ix.Get(id); !ok {
			return fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
		}
		if err := s.vault.Delete(id); err != nil {
			return err
		}
		s.ix.Remove(id)
	}
	return s.store.Save(s.ix)
}

// Regenerate rebuilds the whole index from the vault, bypassing all
// fingerprints, and persists it. Per-note parse failures are returned
// for the caller to report.
func (s *Service) Regenerate() ([]*apperr.MalformedNoteError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, issues, err := index.Rebuild(s.vault)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ix); err != nil {
		return nil, err
	}
	s.ix = ix

	for _, id := range ix.IDs() {
		if id >= s.st.NextID {
			s.st.NextID = id + 1
		}
	}
	return issues, s.store.SaveState(s.st)
}

// ReconcileNow runs one reconciliation pass and persists any changes.
// The watcher calls this after file events.
func (s *Service) ReconcileNow() (index.ChangeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := index.Reconcile(s.ix, s.vault)
	if err != nil {
		return index.ChangeReport{}, err
	}
	if !report.Empty() {
		if err := s.store.Save(s.ix); err != nil {
			return index.ChangeReport{}, err
		}
	}
	return report, nil
}

// RenderHTML renders a note's HTML page into the vault's html directory.
func (s *Service) RenderHTML(id int) error {
	data, err := s.vault.Read(id)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return &apperr.MalformedNoteError{ID: id, Reason: err.Error()}
	}
	page, err := render.Page(res.Title, res.Body)
	if err != nil {
		return err
	}
	return s.vault.WriteHTML(id, page)
}

// AddAsset copies a local file into the vault's assets directory.
func (s *Service) AddAsset(src, rel string) error {
	return s.vault.CopyAsset(src, rel)
}

// Vault exposes the underlying provider for thin callers that need
// paths (e.g. `mdn pmd`).
func (s *Service) Vault() storage.Provider { return s.vault }

// reindexLocked reparses one note and updates its entry. The caller
// holds the write lock. A malformed note keeps its previous entry.
func (s *Service) reindexLocked(id int) error {
	info, err := s.vault.Stat(id)
	if err != nil {
		return err
	}
	data, err := s.vault.Read(id)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return &apperr.MalformedNoteError{ID: id, Reason: err.Error()}
	}

	entry := models.Entry{
		ID:          id,
		Title:       res.Title,
		Group:       res.Group,
		Tags:        res.Tags,
		Fingerprint: info.Fingerprint,
		CreatedAt:   info.ModTime,
		ModifiedAt:  info.ModTime,
	}
	if prev, ok := s.ix.Get(id); ok {
		entry.CreatedAt = prev.CreatedAt
	}
	s.ix.Put(entry)
	return s.store.Save(s.ix)
}

// stale reports whether the rendered file at path is older than srcMod.
func stale(path string, srcMod time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.ModTime().Before(srcMod)
}
