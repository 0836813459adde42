package azblob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

// blobRecorder is a minimal stand-in for the Blob service. It remembers the
// request that wrote each blob: a single Put Blob for small bodies, the block
// list commit for staged ones.
type blobRecorder struct {
	mu      sync.Mutex
	commits map[string]http.Header
}

func (b *blobRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		if r.Header.Get("x-ms-blob-type") != "" || r.URL.Query().Get("comp") == "blocklist" {
			b.mu.Lock()
			b.commits[r.URL.Path] = r.Header.Clone()
			b.mu.Unlock()
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		w.Header().Set("x-ms-error-code", "BlobNotFound")
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *blobRecorder) {
	t.Helper()
	rec := &blobRecorder{commits: map[string]http.Header{}}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL+"/", nil)
	require.NoError(t, err)
	return New(client, "previews"), rec
}

func TestStorePut_SetsHeadersAndMetadata(t *testing.T) {
	store, rec := newTestStore(t)

	err := store.Put(context.Background(), "__outputs/brave-lion-42/index.html", strings.NewReader("<h1>hi</h1>"), objectstore.PutOptions{
		ContentType:  "text/html; charset=utf-8",
		CacheControl: "public, max-age=60",
		Metadata:     map[string]string{objectstore.MetaTraceID: "t1", objectstore.MetaProjectID: "brave-lion-42"},
	})
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	h, ok := rec.commits["/previews/__outputs/brave-lion-42/index.html"]
	require.True(t, ok, "expected a write for the blob")
	require.Equal(t, "text/html; charset=utf-8", h.Get("x-ms-blob-content-type"))
	require.Equal(t, "public, max-age=60", h.Get("x-ms-blob-cache-control"))
	require.Equal(t, "t1", h.Get("x-ms-meta-traceId"))
	require.Equal(t, "brave-lion-42", h.Get("x-ms-meta-projectId"))
}

func TestStorePut_RejectsBadKey(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Put(context.Background(), "../x", strings.NewReader(""), objectstore.PutOptions{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestStoreGet_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "p/missing.html")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}
