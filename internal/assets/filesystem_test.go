package assets

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"docforge/internal/services"
)

func TestFilesystemRoundTrip(t *testing.T) {
	store, err := NewFilesystem(t.TempDir(), "https://assets.example.com")
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()

	url, err := store.Put(ctx, "jobs/j1/enhanced.pdf", strings.NewReader("rendered"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://assets.example.com/jobs/j1/enhanced.pdf" {
		t.Fatalf("url = %q", url)
	}

	reader, err := store.Get(ctx, "jobs/j1/enhanced.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "rendered" {
		t.Fatalf("content = %q", content)
	}
}

func TestFilesystemMissingBlob(t *testing.T) {
	store, err := NewFilesystem(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}

	if _, err := store.Get(context.Background(), "jobs/nope/out.pdf"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("get missing = %v, want not-found marker", err)
	}
	if err := store.Delete(context.Background(), "jobs/nope/out.pdf"); err != nil {
		t.Fatalf("delete missing should be silent: %v", err)
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}

	for _, key := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x")); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q accepted, err = %v", key, err)
		}
	}
}
