// Package query answers list, search and lookup queries over a loaded
// index. All functions are pure with respect to the index; the only side
// channel is reading note bodies for content search.
package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/fuzzy"
	"github.com/halvar/mdn/internal/index"
	"github.com/halvar/mdn/internal/models"
	"github.com/halvar/mdn/internal/storage"
	"github.com/halvar/mdn/internal/tagexpr"
)

// Symbolic id tokens understood by ResolveOne.
const (
	TokenLastCreated = "_c"
	TokenLastEdited  = "_e"
	TokenLastShown   = "_s"
)

// Filter is the cheap metadata filter shared by list and content search.
// All parts are optional; empty strings match everything.
type Filter struct {
	Group string // exact group path or path prefix, case-insensitive
	Tags  string // boolean tag formula, e.g. "@foo & -@bar"
	Title string // fuzzy title pattern
}

// Row is one line of a list result.
type Row struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Group      string    `json:"group"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ContentHit is one note matched by a content search.
type ContentHit struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Snippets []string `json:"snippets"`
}

// PatternMode selects how SearchContent interprets its pattern.
type PatternMode int

const (
	// PatternWildcard treats * as a wildcard and everything else literally.
	PatternWildcard PatternMode = iota
	// PatternLiteral escapes the whole pattern.
	PatternLiteral
	// PatternRegex passes the pattern through as a regular expression.
	PatternRegex
)

// Engine composes the index, the tag formula compiler and the fuzzy
// matcher. It holds no mutable state of its own.
type Engine struct {
	ix    *index.Index
	vault storage.Provider
}

// NewEngine returns an Engine over the given index and vault.
func NewEngine(ix *index.Index, vault storage.Provider) *Engine {
	return &Engine{ix: ix, vault: vault}
}

// List returns the notes passing all parts of the filter, in creation
// (ascending id) order. An invalid tag formula fails the whole query
// before any index work.
func (e *Engine) List(f Filter) ([]Row, error) {
	formula, err := tagexpr.Compile(f.Tags)
	if err != nil {
		return nil, err
	}

	matched := lo.Filter(e.ix.Entries(), func(entry models.Entry, _ int) bool {
		return groupMatches(entry.Group, f.Group) &&
			formula.Match(entry.Tags) &&
			fuzzy.Match(f.Title, entry.Title)
	})
	return lo.Map(matched, func(entry models.Entry, _ int) Row {
		return Row{ID: entry.ID, Title: entry.Title, Group: entry.Group, ModifiedAt: entry.ModifiedAt}
	}), nil
}

// SearchContent greps note contents for pattern. Candidates are narrowed
// by the cheap metadata filter first; only the survivors' bodies are
// read. The scan honors ctx so a superseded request can abort early.
func (e *Engine) SearchContent(ctx context.Context, pattern string, mode PatternMode, f Filter) ([]ContentHit, error) {
	re, err := compilePattern(pattern, mode)
	if err != nil {
		return nil, err
	}

	rows, err := e.List(f)
	if err != nil {
		return nil, err
	}

	var hits []ContentHit
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.vault.Read(row.ID)
		if err != nil {
			return nil, err
		}
		snippets := extractSnippets(re, string(data))
		if len(snippets) > 0 {
			hits = append(hits, ContentHit{ID: row.ID, Title: row.Title, Snippets: snippets})
		}
	}
	return hits, nil
}

// Groups returns the distinct group paths, fuzzy-filtered and sorted.
// This is a pure derived-view lookup; no note file is touched.
func (e *Engine) Groups(pattern string) []string {
	return filterKeys(lo.Keys(e.ix.ByGroup()), pattern)
}

// Tags returns the distinct tags, fuzzy-filtered and sorted.
func (e *Engine) Tags(pattern string) []string {
	return filterKeys(lo.Keys(e.ix.ByTag()), pattern)
}

// ResolveOne resolves a user-supplied token to exactly one note id.
// A numeric token is a literal id; _c/_e/_s come from the caller's
// recency record; anything else is a fuzzy title lookup. Ambiguity
// resolves deterministically: best fuzzy rank (exact > prefix > score >
// shorter > lexicographic title), then most recently modified, then
// lowest id. Zero matches yield apperr.ErrNotFound.
func (e *Engine) ResolveOne(token string, rec models.Recency) (int, error) {
	if id, err := strconv.Atoi(token); err == nil {
		if _, ok := e.ix.Get(id); !ok {
			return 0, fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
		}
		return id, nil
	}

	switch token {
	case TokenLastCreated, TokenLastEdited, TokenLastShown:
		id := map[string]int{
			TokenLastCreated: rec.LastCreated,
			TokenLastEdited:  rec.LastEdited,
			TokenLastShown:   rec.LastShown,
		}[token]
		if id == 0 {
			return 0, fmt.Errorf("no note recorded for %s: %w", token, apperr.ErrNotFound)
		}
		if _, ok := e.ix.Get(id); !ok {
			return 0, fmt.Errorf("note %d: %w", id, apperr.ErrNotFound)
		}
		return id, nil
	}

	entries := e.ix.Entries()
	titles := lo.Map(entries, func(entry models.Entry, _ int) string { return entry.Title })
	ranked := fuzzy.Rank(token, titles)
	if len(ranked) == 0 {
		return 0, fmt.Errorf("no note matches %q: %w", token, apperr.ErrNotFound)
	}

	// Identical titles rank equally; break the tie by recency, then id.
	best := entries[ranked[0]]
	for _, i := range ranked[1:] {
		cand := entries[i]
		if cand.Title != best.Title {
			break
		}
		if cand.ModifiedAt.After(best.ModifiedAt) ||
			(cand.ModifiedAt.Equal(best.ModifiedAt) && cand.ID < best.ID) {
			best = cand
		}
	}
	return best.ID, nil
}

// groupMatches reports whether a note's group path matches the filter:
// the empty filter matches everything, otherwise the match is exact or a
// path-prefix (slash or dot delimited), case-insensitive. A filter of
// "work" matches "work" and "work/projects" but not "workshop".
func groupMatches(group, filter string) bool {
	if filter == "" {
		return true
	}
	g := strings.ToLower(group)
	f := strings.ToLower(filter)
	return g == f ||
		strings.HasPrefix(g, f+"/") ||
		strings.HasPrefix(g, f+".")
}

func filterKeys(keys []string, pattern string) []string {
	out := lo.Filter(keys, func(k string, _ int) bool {
		return fuzzy.Match(pattern, k)
	})
	sort.Strings(out)
	return out
}

func compilePattern(pattern string, mode PatternMode) (*regexp.Regexp, error) {
	var expr string
	switch mode {
	case PatternRegex:
		expr = pattern
	case PatternLiteral:
		expr = "(?i)" + regexp.QuoteMeta(pattern)
	default:
		parts := lo.Map(strings.Split(pattern, "*"), func(p string, _ int) string {
			return regexp.QuoteMeta(p)
		})
		expr = "(?i)" + strings.Join(parts, ".*")
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("query: bad search pattern: %w", err)
	}
	return re, nil
}

// extractSnippets returns one context snippet per match, trimmed at word
// boundaries the way a human would quote it.
func extractSnippets(re *regexp.Regexp, body string) []string {
	const contextLen = 15
	const maxLen = 70

	var out []string
	for _, loc := range re.FindAllStringIndex(body, -1) {
		start := loc[0] - contextLen
		if start < 0 {
			start = 0
		}
		end := loc[1] + contextLen
		if end > len(body) {
			end = len(body)
		}
		hit := strings.ReplaceAll(body[start:end], "\n", " ")

		firstSpace := strings.Index(hit, " ")
		if firstSpace > contextLen {
			firstSpace = -1
		}
		lastSpace := strings.LastIndex(hit, " ")
		if lastSpace <= len(hit)-contextLen {
			lastSpace = len(hit)
		}
		if lastSpace > maxLen {
			lastSpace = maxLen
		}
		if lastSpace > len(hit) || lastSpace < firstSpace+1 {
			lastSpace = len(hit)
		}
		out = append(out, "... "+hit[firstSpace+1:lastSpace]+" ...")
	}
	return out
}
