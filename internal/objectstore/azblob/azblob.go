// Package azblob stores preview artifacts in an Azure Blob Storage container.
package azblob

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

// Store is an objectstore.ObjectStore backed by one blob container.
type Store struct {
	client    *azblob.Client
	container string
}

// New wraps an existing client.
func New(client *azblob.Client, container string) *Store {
	return &Store{client: client, container: container}
}

// Factory authenticates with the default Azure credential chain (managed
// identity in a container group, az login locally).
func Factory(_ context.Context, cfg config.StorageConfig) (objectstore.ObjectStore, error) {
	if cfg.Account == "" || cfg.Container == "" {
		return nil, ferrors.ConfigError("blob storage account and container are required").Build()
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to obtain Azure credential").Build()
	}
	serviceURL := cfg.BaseURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to create blob client").
			WithContext("url", serviceURL).Build()
	}
	return New(client, cfg.Container), nil
}

// Put uploads r as a block blob, overwriting any existing blob.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts objectstore.PutOptions) error {
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	headers := &blob.HTTPHeaders{}
	if opts.ContentType != "" {
		headers.BlobContentType = to.Ptr(opts.ContentType)
	}
	if opts.CacheControl != "" {
		headers.BlobCacheControl = to.Ptr(opts.CacheControl)
	}
	var meta map[string]*string
	if len(opts.Metadata) > 0 {
		meta = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			meta[k] = to.Ptr(v)
		}
	}

	_, err := s.client.UploadStream(ctx, s.container, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: headers,
		Metadata:    meta,
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStorage, "blob upload failed").
			WithContext("container", s.container).
			WithContext("key", key).
			Retryable().Build()
	}
	return nil
}

// Get downloads a blob as a stream.
func (s *Store) Get(ctx context.Context, key string) (*objectstore.Object, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, objectstore.NotFound(key)
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "blob download failed").
			WithContext("key", key).Build()
	}

	obj := &objectstore.Object{Key: key, Body: resp.Body, Metadata: map[string]string{}}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	if resp.CacheControl != nil {
		obj.CacheControl = *resp.CacheControl
	}
	for k, v := range resp.Metadata {
		if v != nil {
			obj.Metadata[k] = *v
		}
	}
	return obj, nil
}

func (s *Store) Close() error {
	return nil
}
