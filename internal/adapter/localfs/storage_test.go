package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ref, err := s.Save(context.Background(), "P-505", "chest_xray.jpg", strings.NewReader("img-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "img-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
	if !strings.HasPrefix(filepath.Base(ref), "P-505_") {
		t.Fatalf("expected patient prefix, got %s", filepath.Base(ref))
	}
	if !strings.HasSuffix(ref, "_chest_xray.jpg") {
		t.Fatalf("expected original filename suffix, got %s", ref)
	}
}

func TestSaveUniqueNames(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	a, err := s.Save(context.Background(), "P-1", "scan.jpg", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	b, err := s.Save(context.Background(), "P-1", "scan.jpg", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a == b {
		t.Fatal("expected unique paths for identical uploads")
	}
}

func TestSaveRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	bad := []string{"../../etc/passwd", "a/b.jpg", `a\b.jpg`, ".hidden", ""}
	for _, name := range bad {
		if _, err := s.Save(context.Background(), "P-1", name, strings.NewReader("x")); err == nil {
			t.Fatalf("expected rejection for filename %q", name)
		}
	}
	if _, err := s.Save(context.Background(), "../P-1", "scan.jpg", strings.NewReader("x")); err == nil {
		t.Fatal("expected rejection for traversal in patient id")
	}
}
