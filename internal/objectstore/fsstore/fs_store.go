// Package fsstore is a filesystem implementation of objectstore.ObjectStore.
//
// Objects live under <root>/<container>/<key>; attributes are kept in a
// sidecar JSON file so the tree under the container directory is exactly
// what a static file server would publish:
//
//	<root>/
//	  <container>/
//	    __outputs/brave-lion-42/index.html
//	  .meta/
//	    <container>/
//	      __outputs/brave-lion-42/index.html.json
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

// Store is a filesystem-based objectstore.ObjectStore.
type Store struct {
	root      string
	container string
}

type attributes struct {
	ContentType  string            `json:"contentType,omitempty"`
	CacheControl string            `json:"cacheControl,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// New creates the container directory under root.
func New(root, container string) (*Store, error) {
	if container == "" || strings.ContainsAny(container, `/\`) {
		return nil, ferrors.ConfigError("invalid storage container").WithContext("container", container).Build()
	}
	for _, dir := range []string{filepath.Join(root, container), filepath.Join(root, ".meta", container)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "create storage directory").
				WithContext("path", dir).Build()
		}
	}
	return &Store{root: root, container: container}, nil
}

// Factory adapts New to objectstore.Factory.
func Factory(_ context.Context, cfg config.StorageConfig) (objectstore.ObjectStore, error) {
	return New(cfg.Root, cfg.Container)
}

// Put writes to a temporary file and renames it into place, so readers
// never observe a partially written object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts objectstore.PutOptions) error {
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStorage, "upload canceled").WithContext("key", key).Build()
	}

	dst := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return storageErr(err, "create object directory", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return storageErr(err, "create temporary object", key)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return storageErr(err, "write object", key)
	}
	if err := tmp.Close(); err != nil {
		return storageErr(err, "write object", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return storageErr(err, "commit object", key)
	}

	attrs := attributes{ContentType: opts.ContentType, CacheControl: opts.CacheControl, Metadata: maps.Clone(opts.Metadata)}
	if err := s.writeAttributes(key, attrs); err != nil {
		return storageErr(err, "write metadata", key)
	}
	return nil
}

// Get opens the object for reading.
func (s *Store) Get(_ context.Context, key string) (*objectstore.Object, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}
	// #nosec G304 -- key is validated to stay within the container
	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objectstore.NotFound(key)
		}
		return nil, storageErr(err, "open object", key)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, storageErr(err, "stat object", key)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, objectstore.NotFound(key)
	}

	attrs, err := s.readAttributes(key)
	if err != nil && !os.IsNotExist(err) {
		_ = f.Close()
		return nil, storageErr(err, "read metadata", key)
	}
	return &objectstore.Object{
		Key:          key,
		Size:         info.Size(),
		ContentType:  attrs.ContentType,
		CacheControl: attrs.CacheControl,
		Metadata:     attrs.Metadata,
		Body:         f,
	}, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) objectPath(key string) string {
	return filepath.Join(s.root, s.container, filepath.FromSlash(key))
}

func (s *Store) attributesPath(key string) string {
	return filepath.Join(s.root, ".meta", s.container, filepath.FromSlash(key)+".json")
}

func (s *Store) readAttributes(key string) (attributes, error) {
	var attrs attributes
	// #nosec G304 -- key is validated to stay within the container
	data, err := os.ReadFile(s.attributesPath(key))
	if err != nil {
		return attrs, err
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return attrs, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return attrs, nil
}

func (s *Store) writeAttributes(key string, attrs attributes) error {
	p := s.attributesPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

func storageErr(err error, msg, key string) error {
	return ferrors.WrapError(err, ferrors.CategoryStorage, msg).WithContext("key", key).Retryable().Build()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
