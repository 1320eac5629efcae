// Package storage keeps uploaded profile photos in a directory that the
// server exposes under /media/.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Bucket stores named objects and returns their public URL.
type Bucket interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileBucket is a Bucket backed by a local directory.
type FileBucket struct {
	dir     string
	baseURL string
}

// NewFileBucket creates dir if needed. baseURL is the public prefix the
// directory is served from, e.g. "https://api.tagfer.com/media".
func NewFileBucket(dir, baseURL string) (*FileBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &FileBucket{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory objects are written to.
func (b *FileBucket) Dir() string { return b.dir }

// Put writes data under name, replacing any previous object, and returns
// its URL. The write goes through a temp file so readers never see a
// partial photo.
func (b *FileBucket) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: invalid object name %q", name)
	}

	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, name)); err != nil {
		return "", fmt.Errorf("storage: renaming %s: %w", name, err)
	}

	return b.baseURL + "/" + url.PathEscape(name), nil
}
