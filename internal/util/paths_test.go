package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalPathResolvesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.conf")
	if err := os.WriteFile(target, nil, 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.conf")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if got := CanonicalPath(link); got != CanonicalPath(target) {
		t.Errorf("CanonicalPath(%q) = %q, want %q", link, got, CanonicalPath(target))
	}
}

func TestCanonicalPathMissingTarget(t *testing.T) {
	got := CanonicalPath("/no/such//dir/../file.conf")
	if got != "/no/such/file.conf" {
		t.Errorf("CanonicalPath = %q, want cleaned literal path", got)
	}
}
