package errors

import (
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: http.StatusOK},
		{name: "invalid request", err: ValidationError("gitURL is required").Build(), expected: http.StatusBadRequest},
		{name: "configuration", err: ConfigError("missing").Build(), expected: http.StatusInternalServerError},
		{name: "provisioning", err: ProvisioningError("failed").Build(), expected: http.StatusInternalServerError},
		{name: "not found", err: NotFoundError("no ledger").Build(), expected: http.StatusNotFound},
		{name: "unclassified", err: stdErrors.New("unknown"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.StatusCodeFor(tt.err); got != tt.expected {
				t.Errorf("StatusCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	t.Run("validation envelope", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/project", nil)
		adapter.WriteErrorResponse(rec, req, ValidationError("gitURL is required").Build())

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var body HTTPErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "error" || body.Message != "gitURL is required" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("proxy errors stay generic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		err := WrapError(stdErrors.New("dial https://acct.blob.core.windows.net"), CategoryProxy, "Preview misconfigured").Build()
		adapter.WriteErrorResponse(rec, req, err)

		var body HTTPErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Message != "Preview misconfigured" {
			t.Errorf("expected generic message, got %q", body.Message)
		}
	})
}
