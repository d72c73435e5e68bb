package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/noteservice"
	"github.com/halvar/mdn/internal/parser"
	"github.com/halvar/mdn/internal/query"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// NoteDetail is the full representation of one note.
type NoteDetail struct {
	ID         int            `json:"id"`
	Title      string         `json:"title"`
	Group      string         `json:"group"`
	Tags       []string       `json:"tags"`
	Meta       map[string]any `json:"meta,omitempty"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
}

func filterFromQuery(r *http.Request) query.Filter {
	q := r.URL.Query()
	return query.Filter{
		Group: q.Get("group"),
		Tags:  q.Get("tags"),
		Title: q.Get("q"),
	}
}

// writeError maps application errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var invalid *apperr.InvalidFilterError
	var malformed *apperr.MalformedNoteError
	var corrupt *apperr.CorruptIndexError

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorBody(invalid.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(malformed.Error()))
	case errors.As(err, &corrupt):
		slog.Error("index corrupt", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError,
			errorBody("index is corrupt, run `mdn regenerate`"))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNotes handles GET /api/notes. Query parameters group, tags and q
// narrow the result the same way `mdn ls` does.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.List(filterFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": rows,
		"total": len(rows),
	})
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be numeric"))
		return
	}

	entry, err := h.svc.Entry(id)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.svc.Vault().Read(id)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := parser.Parse(data)
	if err != nil {
		writeError(w, &apperr.MalformedNoteError{ID: id, Reason: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, NoteDetail{
		ID:         entry.ID,
		Title:      entry.Title,
		Group:      entry.Group,
		Tags:       entry.Tags,
		Meta:       res.Meta,
		Content:    res.Body,
		CreatedAt:  entry.CreatedAt,
		ModifiedAt: entry.ModifiedAt,
	})
}

// Search handles GET /api/search. The q parameter is required; regex=1
// switches from wildcard to regular expression matching. group and tags
// narrow candidates before any file is read.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	mode := query.PatternWildcard
	if r.URL.Query().Get("regex") == "1" {
		mode = query.PatternRegex
	}

	f := filterFromQuery(r)
	f.Title = ""
	hits, err := h.svc.SearchContent(r.Context(), q, mode, f)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing to write.
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": hits,
	})
}

// Groups handles GET /api/groups.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": h.svc.Groups(r.URL.Query().Get("q")),
	})
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tags": h.svc.Tags(r.URL.Query().Get("q")),
	})
}

// Resolve handles GET /api/resolve. The token parameter is an id, a
// fuzzy title pattern or one of the recency tokens _c, _e, _s.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'token' is required"))
		return
	}
	id, err := h.svc.Resolve(token)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.svc.Entry(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    entry.ID,
		"title": entry.Title,
		"group": entry.Group,
	})
}
