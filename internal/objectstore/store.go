// Package objectstore defines the durable artifact store the worker uploads
// previews into and the proxy reads from, over HTTP or directly.
package objectstore

import (
	"context"
	"io"
	"path"
	"strings"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// ObjectStore writes named objects into one container.
type ObjectStore interface {
	// Put stores the content of r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error

	// Get opens a stored object. Returns an error in CategoryNotFound when
	// the key does not exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Close releases any resources held by the store.
	Close() error
}

// PutOptions carries the HTTP facing attributes of an object.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// Object is a stored artifact opened for reading. Callers close Body.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	Body         io.ReadCloser
}

// Metadata keys attached to every uploaded artifact.
const (
	MetaTraceID   = "traceId"
	MetaProjectID = "projectId"
)

// Key joins key segments with '/' and drops empty ones, so an empty prefix
// yields "<projectId>/<path>" rather than a leading slash.
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ValidateKey rejects keys that are empty, absolute or escape the container.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ferrors.ValidationError("invalid object key").WithContext("key", key).Build()
	}
	if clean := path.Clean(key); clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return ferrors.ValidationError("invalid object key").WithContext("key", key).Build()
	}
	return nil
}

// NotFound builds the error Get returns for a missing key.
func NotFound(key string) error {
	return ferrors.NotFoundError("object not found").WithContext("key", key).Build()
}
