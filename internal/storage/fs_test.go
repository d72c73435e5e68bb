package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFS(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs, dir
}

func TestNewFSCreatesLayout(t *testing.T) {
	_, dir := newFS(t)
	for _, sub := range []string{"md", "html", "assets"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", sub, err)
		}
	}
}

func TestWriteReadDelete(t *testing.T) {
	fs, _ := newFS(t)

	content := []byte("---\ntitle: T\ngroup: g\n---\nhello\n")
	if err := fs.Write(7, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(7)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch")
	}

	if err := fs.WriteHTML(7, []byte("<html></html>")); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}

	if err := fs.Delete(7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Read(7); err == nil {
		t.Error("Read after Delete succeeded")
	}
	if _, err := os.Stat(fs.HTMLPath(7)); !os.IsNotExist(err) {
		t.Error("html file survived Delete")
	}
}

func TestListIgnoresStrangers(t *testing.T) {
	fs, dir := newFS(t)

	if err := fs.Write(1, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write(12, []byte("yy")); err != nil {
		t.Fatal(err)
	}
	// Files that are not <id>.md must be ignored.
	for _, name := range []string{"readme.md", "7.txt", "a7.md", "7.md.bak", ".hidden.md"} {
		if err := os.WriteFile(filepath.Join(dir, "md", name), []byte("z"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := fs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("List = %d files, want 2", len(files))
	}
	ids := map[int]bool{}
	for _, f := range files {
		ids[f.ID] = true
		if f.Fingerprint == "" {
			t.Errorf("note %d has empty fingerprint", f.ID)
		}
	}
	if !ids[1] || !ids[12] {
		t.Errorf("ids = %v", ids)
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	fs, dir := newFS(t)
	if err := fs.Write(1, []byte("content")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "md"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".mdn-tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestCopyAsset(t *testing.T) {
	fs, _ := newFS(t)

	src := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(src, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.CopyAsset(src, "pic.png"); err != nil {
		t.Fatalf("CopyAsset: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(fs.AssetsDir(), "pic.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "png-bytes" {
		t.Error("asset content mismatch")
	}
}

func TestCopyAssetRejectsTraversal(t *testing.T) {
	fs, _ := newFS(t)

	src := filepath.Join(t.TempDir(), "evil")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"../escape", "/abs/path", "..", ""} {
		if err := fs.CopyAsset(src, rel); err == nil {
			t.Errorf("CopyAsset(%q) succeeded, want error", rel)
		}
	}
}
