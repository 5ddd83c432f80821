package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docforge/internal/services"
)

// Filesystem stores blobs under a root directory. Writes go through a
// temp file and rename so readers never observe partial content.
type Filesystem struct {
	root    string
	baseURL string
}

// NewFilesystem creates the root directory if needed. baseURL is
// prepended to keys when resolving external URLs; a file:// URL is used
// when it is empty.
func NewFilesystem(root, baseURL string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &Filesystem{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (f *Filesystem) Put(ctx context.Context, key string, content io.Reader) (string, error) {
	path, err := f.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("publish blob %s: %w", key, err)
	}
	return f.URL(key), nil
}

func (f *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "", "assets", fmt.Sprintf("blob %s not found", key), err)
		}
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return file, nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (f *Filesystem) URL(key string) string {
	if f.baseURL != "" {
		return f.baseURL + "/" + strings.TrimLeft(key, "/")
	}
	return "file://" + filepath.Join(f.root, filepath.FromSlash(key))
}

// resolve maps a key onto the root and rejects traversal outside it.
func (f *Filesystem) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", services.Wrap(services.ErrValidation, "", "assets", fmt.Sprintf("invalid asset key %q", key), nil)
	}
	return filepath.Join(f.root, clean), nil
}
