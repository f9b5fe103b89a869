// Package blob stores exported model files on the local filesystem or in
// S3-compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when a key has no content.
var ErrNotFound = errors.New("blob not found")

// Store is a flat keyed file store.
type Store interface {
	// Put writes the content of r under key, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the content stored under key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// cleanKey normalizes key to a slash-separated relative path and rejects
// keys that would escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	cleaned := strings.Trim(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return cleaned, nil
}
