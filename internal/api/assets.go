package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AssetHandler accepts asset uploads into the vault's assets directory.
type AssetHandler struct {
	assetsDir string
}

// NewAssetHandler creates a handler rooted at the given assets directory.
func NewAssetHandler(assetsDir string) *AssetHandler {
	return &AssetHandler{assetsDir: assetsDir}
}

// safeName validates that the filename is a plain name (no path
// separators, no traversal) and returns the absolute path under the
// assets dir.
func (h *AssetHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.assetsDir, cleaned)
	if !strings.HasPrefix(abs, h.assetsDir+string(os.PathSeparator)) && abs != h.assetsDir {
		return "", fmt.Errorf("path escapes assets directory")
	}
	return abs, nil
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	abs, err := h.safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.MkdirAll(h.assetsDir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create assets dir"))
		return
	}

	dst, err := os.Create(abs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"filename": header.Filename,
		"size":     written,
	})
}
