package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/halvar/mdn/internal/models"
)

var noteFileRe = regexp.MustCompile(`^(\d+)\.md$`)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the vault directory
}

// NewFS creates an FS provider rooted at the given directory, creating
// the md/, html/ and assets/ subdirectories as needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	for _, sub := range []string{"md", "html", "assets"} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s dir: %w", sub, err)
		}
	}
	return &FS{root: abs}, nil
}

// List stats every well-named note file under md/. Files whose names do
// not match <id>.md are not notes and are ignored.
func (f *FS) List() ([]models.FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, "md"))
	if err != nil {
		return nil, fmt.Errorf("storage: list notes: %w", err)
	}
	var out []models.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := noteFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", e.Name(), err)
		}
		out = append(out, models.FileInfo{
			ID:          id,
			Path:        filepath.Join("md", e.Name()),
			Fingerprint: models.Fingerprint(info.ModTime(), info.Size()),
			ModTime:     info.ModTime(),
			Size:        info.Size(),
		})
	}
	return out, nil
}

// Stat returns metadata for a single note file.
func (f *FS) Stat(id int) (models.FileInfo, error) {
	info, err := os.Stat(f.NotePath(id))
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("storage: stat note %d: %w", id, err)
	}
	return models.FileInfo{
		ID:          id,
		Path:        filepath.Join("md", fmt.Sprintf("%d.md", id)),
		Fingerprint: models.Fingerprint(info.ModTime(), info.Size()),
		ModTime:     info.ModTime(),
		Size:        info.Size(),
	}, nil
}

// Read returns the raw bytes of a note file.
func (f *FS) Read(id int) ([]byte, error) {
	data, err := os.ReadFile(f.NotePath(id))
	if err != nil {
		return nil, fmt.Errorf("storage: read note %d: %w", id, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(id int, content []byte) error {
	return atomicWrite(f.NotePath(id), content)
}

// Delete removes a note file and its rendered HTML, if present.
func (f *FS) Delete(id int) error {
	if err := os.Remove(f.NotePath(id)); err != nil {
		return fmt.Errorf("storage: delete note %d: %w", id, err)
	}
	if err := os.Remove(f.HTMLPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete html %d: %w", id, err)
	}
	return nil
}

// NotePath returns the absolute path of a note file.
func (f *FS) NotePath(id int) string {
	return filepath.Join(f.root, "md", fmt.Sprintf("%d.md", id))
}

// HTMLPath returns the absolute path of a note's rendered HTML.
func (f *FS) HTMLPath(id int) string {
	return filepath.Join(f.root, "html", fmt.Sprintf("%d.html", id))
}

// WriteHTML atomically writes rendered HTML for a note.
func (f *FS) WriteHTML(id int, content []byte) error {
	return atomicWrite(f.HTMLPath(id), content)
}

// AssetsDir returns the absolute path of the shared assets directory.
func (f *FS) AssetsDir() string {
	return filepath.Join(f.root, "assets")
}

// CopyAsset copies src into the assets directory under rel. The target
// path must stay inside assets/; asset names are opaque and never
// interpreted by the index.
func (f *FS) CopyAsset(src, rel string) error {
	dst, err := f.safeAssetPath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: create asset dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("storage: open asset source: %w", err)
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("storage: read asset source: %w", err)
	}
	return atomicWrite(dst, data)
}

// safeAssetPath resolves rel against assets/ and rejects any result that
// escapes it (directory traversal).
func (f *FS) safeAssetPath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "" || cleaned == "." || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: invalid asset path: %q", rel)
	}
	base := f.AssetsDir()
	joined := filepath.Join(base, cleaned)
	if !strings.HasPrefix(joined, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: asset path escapes assets dir: %q", rel)
	}
	return joined, nil
}

// atomicWrite never leaves a partially written file behind: content goes
// to a temp file in the same directory which is fsynced and renamed over
// the target, with cleanup on every failure path.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mdn-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
