package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/dispatch"
	"git.home.luguber.info/inful/previewer/internal/eventstore"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/metrics"
)

type stubSubmitter struct {
	got build.BuildRequest
	sub dispatch.Submission
	err error
}

func (s *stubSubmitter) SubmitBuild(_ context.Context, req build.BuildRequest) (dispatch.Submission, error) {
	s.got = req
	return s.sub, s.err
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(":0", &stubSubmitter{})
	w, body := do(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"status": "healthy", "service": "api-server"}, body)
}

func TestCreateProject_Queued(t *testing.T) {
	stub := &stubSubmitter{sub: dispatch.Submission{
		ProjectSlug: "brave-lion-42",
		JobRef:      "build-brave-lion-42-1",
		TraceID:     "trace-1",
		PreviewURL:  "https://preview.example.com/brave-lion-42",
	}}
	srv := NewServer(":0", stub)

	w, body := do(t, srv.Handler(), http.MethodPost, "/project", `{"gitURL":"https://example.com/x/y.git","slug":"brave-lion-42"}`,
		map[string]string{TraceHeader: "trace-1"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "queued", body["status"])
	require.Equal(t, map[string]any{
		"projectSlug": "brave-lion-42",
		"jobRef":      "build-brave-lion-42-1",
		"traceId":     "trace-1",
		"url":         "https://preview.example.com/brave-lion-42",
	}, body["data"])
	require.Equal(t, build.BuildRequest{GitURL: "https://example.com/x/y.git", Slug: "brave-lion-42", TraceID: "trace-1"}, stub.got)
}

func TestCreateProject_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"validation", `{}`, ferrors.ValidationError("gitURL is required").Build(), http.StatusBadRequest, "gitURL is required"},
		{"malformed body", `{"gitURL":`, nil, http.StatusBadRequest, "invalid request body"},
		{"provisioning", `{"gitURL":"x"}`, ferrors.WrapError(errors.New("quota exceeded"), ferrors.CategoryProvisioning, "failed to provision build").Build(),
			http.StatusInternalServerError, "failed to provision build: quota exceeded"},
		{"config", `{"gitURL":"x"}`, ferrors.ConfigError("no provisioner configured").Build(), http.StatusInternalServerError, "no provisioner configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(":0", &stubSubmitter{err: tc.err})
			w, body := do(t, srv.Handler(), http.MethodPost, "/project", tc.body, nil)
			require.Equal(t, tc.status, w.Code)
			require.Equal(t, "error", body["status"])
			require.Contains(t, body["message"], tc.msg)
		})
	}
}

func TestCreateProject_EmptyBodyReachesValidation(t *testing.T) {
	stub := &stubSubmitter{err: ferrors.ValidationError("gitURL is required").Build()}
	srv := NewServer(":0", stub)
	w, body := do(t, srv.Handler(), http.MethodPost, "/project", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "gitURL is required", body["message"])
	require.Equal(t, build.BuildRequest{}, stub.got)
}

func TestCORS(t *testing.T) {
	srv := NewServer(":0", &stubSubmitter{}, WithFrontendOrigin("http://localhost:3000"))

	w, _ := do(t, srv.Handler(), http.MethodOptions, "/project", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Trace-Id")

	w, _ = do(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListBuilds(t *testing.T) {
	w, body := do(t, NewServer(":0", &stubSubmitter{}).Handler(), http.MethodGet, "/project/p1/builds", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code, "ledger disabled")
	require.Equal(t, "error", body["status"])

	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	e, err := eventstore.NewBuildQueued("p1", eventstore.Dispatch{TraceID: "t1", JobRef: "build-p1-1"})
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), e))

	srv := NewServer(":0", &stubSubmitter{}, WithLedger(store))
	w, body = do(t, srv.Handler(), http.MethodGet, "/project/p1/builds", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := body["data"].([]any)
	require.Len(t, records, 1)
	require.Equal(t, "build-p1-1", records[0].(map[string]any)["jobRef"])

	w, _ = do(t, srv.Handler(), http.MethodGet, "/project/Not_A_Slug/builds", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.IncDispatch(metrics.DispatchQueued)

	srv := NewServer(":0", &stubSubmitter{}, WithMetricsRegistry(reg))
	w, _ := do(t, srv.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `previewer_dispatch_total{outcome="queued"} 1`)
}
