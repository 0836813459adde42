// Package proxy serves stored preview artifacts under per-project
// subdomains: a request for brave-lion-42.<domain>/app.js is forwarded to
// <base>/<container>/<prefix>/brave-lion-42/app.js.
//
// Without a base URL the proxy can read objects straight from a store,
// which is how fs-backed previews are served locally.
package proxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

// misconfigured is the only error text clients ever see.
const misconfigured = "Preview misconfigured"

// Settings locate the artifacts in the object store.
type Settings struct {
	BaseURL       string
	Container     string
	Prefix        string
	AllowInsecure bool
}

// SettingsFrom reads proxy settings from the loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		BaseURL:       cfg.Storage.BaseURL,
		Container:     cfg.Storage.Container,
		Prefix:        cfg.Storage.Prefix,
		AllowInsecure: cfg.Proxy.AllowInsecure,
	}
}

// Proxy is an http.Handler. It keeps no per-request state.
type Proxy struct {
	base      *url.URL
	container string
	prefix    string
	rp        *httputil.ReverseProxy
	store     objectstore.ObjectStore
	adapter   *ferrors.HTTPErrorAdapter
	logger    *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithTransport replaces the upstream round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) { p.rp.Transport = rt }
}

// WithStore serves objects from store instead of an upstream URL. The
// store's own container applies; only the prefix is added to keys.
func WithStore(store objectstore.ObjectStore) Option {
	return func(p *Proxy) { p.store = store }
}

// WithLogger sets the logger for upstream failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.logger = l
		}
	}
}

type targetKey struct{}

// New validates the upstream scheme. An empty base URL or container is
// accepted here and reported per request, so the proxy still answers
// health checks while misconfigured.
func New(s Settings, opts ...Option) (*Proxy, error) {
	p := &Proxy{
		container: strings.Trim(s.Container, "/"),
		prefix:    strings.Trim(s.Prefix, "/"),
		logger:    slog.Default(),
	}
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Host == "" {
			return nil, ferrors.ConfigError("invalid storage base URL").WithContext("url", s.BaseURL).Build()
		}
		if u.Scheme != "https" && (u.Scheme != "http" || !s.AllowInsecure) {
			return nil, ferrors.ConfigError("storage base URL must use https").
				WithContext("url", s.BaseURL).Build()
		}
		p.base = u
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		ErrorHandler: p.upstreamError,
	}
	for _, o := range opts {
		o(p)
	}
	p.adapter = ferrors.NewHTTPErrorAdapter(p.logger)
	return p, nil
}

// ServeHTTP resolves the target for the request's subdomain and forwards.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.store != nil {
		p.serveStored(w, r)
		return
	}
	target, err := p.Resolve(r.Host)
	if err != nil {
		p.logger.Error("Preview resolution failed", logfields.Host(r.Host), logfields.Error(err))
		p.adapter.WriteErrorResponse(w, r, ferrors.ProxyError(misconfigured).Build())
		return
	}
	ctx := context.WithValue(r.Context(), targetKey{}, target)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// Resolve maps a Host header to the upstream directory for its preview.
func (p *Proxy) Resolve(host string) (*url.URL, error) {
	if p.base == nil {
		return nil, ferrors.ProxyError("storage base URL is not configured").Build()
	}
	if p.container == "" {
		return nil, ferrors.ProxyError("storage container is not configured").Build()
	}
	sub := Subdomain(host)
	if sub == "" {
		return nil, ferrors.ProxyError("request has no host").Build()
	}
	target := *p.base
	target.Path = "/" + strings.Join(nonEmpty(strings.Trim(p.base.Path, "/"), p.container, p.prefix, sub), "/")
	target.RawPath = ""
	return &target, nil
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	target, _ := pr.In.Context().Value(targetKey{}).(*url.URL)
	if rewritten := RewritePath(pr.Out.URL.Path); rewritten != pr.Out.URL.Path {
		pr.Out.URL.Path = rewritten
		pr.Out.URL.RawPath = ""
	}
	pr.SetURL(target)
	pr.SetXForwarded()
}

// ObjectKey maps a request to the store key of its artifact.
func (p *Proxy) ObjectKey(host, urlPath string) (string, error) {
	sub := Subdomain(host)
	if sub == "" {
		return "", ferrors.ProxyError("request has no host").Build()
	}
	return objectstore.Key(p.prefix, sub, RewritePath(urlPath)), nil
}

func (p *Proxy) serveStored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	key, err := p.ObjectKey(r.Host, r.URL.Path)
	if err != nil {
		p.logger.Error("Preview resolution failed", logfields.Host(r.Host), logfields.Error(err))
		p.adapter.WriteErrorResponse(w, r, ferrors.ProxyError(misconfigured).Build())
		return
	}
	obj, err := p.store.Get(r.Context(), key)
	switch {
	case ferrors.HasCategory(err, ferrors.CategoryNotFound), ferrors.HasCategory(err, ferrors.CategoryValidation):
		http.NotFound(w, r)
		return
	case err != nil:
		p.upstreamError(w, r, err)
		return
	}
	defer func() { _ = obj.Body.Close() }()

	h := w.Header()
	if obj.ContentType != "" {
		h.Set("Content-Type", obj.ContentType)
	}
	if obj.CacheControl != "" {
		h.Set("Cache-Control", obj.CacheControl)
	}
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
		return
	}
	h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = io.Copy(w, obj.Body)
	}
}

func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("Preview upstream failed", logfields.Host(r.Host), logfields.Path(r.URL.Path), logfields.Error(err))
	p.adapter.WriteErrorResponse(w, r, ferrors.ProxyError(misconfigured).Build())
}

// Subdomain returns the first label of host, lowercased, with any port
// removed. A host without dots is its own subdomain.
func Subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, _ := strings.Cut(host, ".")
	return strings.ToLower(label)
}

// RewritePath maps the site root to its index document. Every other path
// is returned unchanged, so applying it twice is the same as once.
func RewritePath(path string) string {
	if path == "/" {
		return "/index.html"
	}
	return path
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
