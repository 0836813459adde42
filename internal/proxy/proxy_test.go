package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
	"git.home.luguber.info/inful/previewer/internal/objectstore/fsstore"
)

type seenRequest struct {
	method, path, host, body string
	header                   http.Header
}

func newUpstream(t *testing.T) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []seenRequest
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{r.Method, r.URL.Path, r.Host, string(body), r.Header.Clone()})
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "served "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func newProxy(t *testing.T, upstream *httptest.Server) *Proxy {
	t.Helper()
	p, err := New(Settings{BaseURL: upstream.URL, Container: "build-outputs", Prefix: "__outputs"},
		WithTransport(upstream.Client().Transport))
	require.NoError(t, err)
	return p
}

func TestSubdomain(t *testing.T) {
	cases := []struct{ host, want string }{
		{"brave-lion-42.preview.example.com", "brave-lion-42"},
		{"brave-lion-42.localhost:8000", "brave-lion-42"},
		{"Brave-Lion-42.example.com", "brave-lion-42"},
		{"localhost", "localhost"},
		{"localhost:8000", "localhost"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Subdomain(tc.host), tc.host)
	}
}

func TestRewritePath(t *testing.T) {
	for _, p := range []string{"/", "/index.html", "/assets/app.js", "/docs/", ""} {
		once := RewritePath(p)
		require.Equal(t, once, RewritePath(once), "idempotent for %q", p)
	}
	require.Equal(t, "/index.html", RewritePath("/"))
	require.Equal(t, "/docs/", RewritePath("/docs/"))
}

func TestResolve(t *testing.T) {
	p, err := New(Settings{BaseURL: "https://acct.blob.core.windows.net", Container: "build-outputs", Prefix: "__outputs"})
	require.NoError(t, err)
	u, err := p.Resolve("brave-lion-42.preview.example.com")
	require.NoError(t, err)
	require.Equal(t, "https://acct.blob.core.windows.net/build-outputs/__outputs/brave-lion-42", u.String())

	p, err = New(Settings{BaseURL: "https://cdn.example.com/static/", Container: "c"})
	require.NoError(t, err)
	u, err = p.Resolve("x.example.com")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/static/c/x", u.String())
}

func TestNew_RejectsInsecureUpstream(t *testing.T) {
	_, err := New(Settings{BaseURL: "http://127.0.0.1:10000", Container: "c"})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	_, err = New(Settings{BaseURL: "http://127.0.0.1:10000", Container: "c", AllowInsecure: true})
	require.NoError(t, err)

	_, err = New(Settings{BaseURL: "ftp://example.com", Container: "c", AllowInsecure: true})
	require.Error(t, err)
}

func TestProxy_ForwardsToProjectDirectory(t *testing.T) {
	upstream, seen := newUpstream(t)
	h := Router(newProxy(t, upstream), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://brave-lion-42.preview.example.com/", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "served /build-outputs/__outputs/brave-lion-42/index.html", rec.Body.String())

	got := seen()
	require.Len(t, got, 1)
	require.Equal(t, strings.TrimPrefix(upstream.URL, "https://"), got[0].host, "Host is rewritten to the upstream")
	require.Equal(t, "text/html", got[0].header.Get("Accept"))
}

func TestProxy_OtherPathsUnchanged(t *testing.T) {
	upstream, seen := newUpstream(t)
	h := Router(newProxy(t, upstream), nil, nil)

	for _, path := range []string{"/assets/app.js", "/index.html", "/docs/"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://p1.example.com"+path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	got := seen()
	require.Equal(t, "/build-outputs/__outputs/p1/assets/app.js", got[0].path)
	require.Equal(t, "/build-outputs/__outputs/p1/index.html", got[1].path)
	require.Equal(t, "/build-outputs/__outputs/p1/docs/", got[2].path)
}

func TestProxy_ForwardsMethodAndBody(t *testing.T) {
	upstream, seen := newUpstream(t)
	h := Router(newProxy(t, upstream), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://p1.example.com/form", strings.NewReader("a=1")))
	require.Equal(t, http.StatusOK, rec.Code)

	got := seen()
	require.Equal(t, http.MethodPost, got[0].method)
	require.Equal(t, "a=1", got[0].body)
}

func TestProxy_UpstreamFailureIsGeneric(t *testing.T) {
	upstream, _ := newUpstream(t)
	p := newProxy(t, upstream)
	upstream.Close()

	rec := httptest.NewRecorder()
	Router(p, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://p1.example.com/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "Preview misconfigured")
	require.NotContains(t, rec.Body.String(), "127.0.0.1")
}

func TestProxy_MissingContainerIsGeneric(t *testing.T) {
	p, err := New(Settings{BaseURL: "https://acct.blob.core.windows.net"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	Router(p, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://p1.example.com/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Preview misconfigured", body["message"])
	require.NotContains(t, rec.Body.String(), "acct.blob")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	upstream, seen := newUpstream(t)
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	h := Router(newProxy(t, upstream), rec, reg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://p1.example.com/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"status": "healthy", "service": "reverse-proxy"}, body)
	require.Empty(t, seen(), "health is answered locally")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://p1.example.com/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `previewer_proxy_requests_total{status="200"} 1`)
}

func TestSettingsFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseURL = "https://x.blob.core.windows.net"
	s := SettingsFrom(cfg)
	require.Equal(t, "https://x.blob.core.windows.net", s.BaseURL)
	require.Equal(t, config.DefaultContainer, s.Container)
	require.Equal(t, config.DefaultPrefix, s.Prefix)
}

func newStoreProxy(t *testing.T) http.Handler {
	t.Helper()
	store, err := fsstore.New(t.TempDir(), "build-outputs")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "__outputs/brave-lion-42/index.html", strings.NewReader("<h1>preview</h1>"),
		objectstore.PutOptions{ContentType: "text/html; charset=utf-8", CacheControl: "public, max-age=60"}))
	require.NoError(t, store.Put(ctx, "__outputs/brave-lion-42/assets/app.js", strings.NewReader("run()"),
		objectstore.PutOptions{ContentType: "text/javascript; charset=utf-8"}))

	p, err := New(Settings{Container: "build-outputs", Prefix: "__outputs"}, WithStore(store))
	require.NoError(t, err)
	return Router(p, nil, nil)
}

func TestProxy_ServesFromStore(t *testing.T) {
	h := newStoreProxy(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://brave-lion-42.localhost:8000/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<h1>preview</h1>", rec.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://brave-lion-42.localhost:8000/assets/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "run()", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "http://brave-lion-42.localhost:8000/index.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestProxy_StoreMisses(t *testing.T) {
	h := newStoreProxy(t)

	cases := []struct {
		method, url string
		want        int
	}{
		{http.MethodGet, "http://other-site.localhost/", http.StatusNotFound},
		{http.MethodGet, "http://brave-lion-42.localhost/missing.css", http.StatusNotFound},
		{http.MethodGet, "http://brave-lion-42.localhost/../../etc/passwd", http.StatusNotFound},
		{http.MethodPost, "http://brave-lion-42.localhost/", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.url, nil)
		h.ServeHTTP(rec, req)
		require.Equal(t, tc.want, rec.Code, tc.method+" "+tc.url)
	}
}

func TestObjectKey(t *testing.T) {
	p, err := New(Settings{Prefix: "__outputs"})
	require.NoError(t, err)

	key, err := p.ObjectKey("brave-lion-42.preview.example.com", "/")
	require.NoError(t, err)
	require.Equal(t, "__outputs/brave-lion-42/index.html", key)

	_, err = p.ObjectKey("", "/")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryProxy))
}
