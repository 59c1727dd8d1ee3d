package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// DecodeJSON checks the recorder's status code and decodes its body into v.
func DecodeJSON(t testing.TB, w *httptest.ResponseRecorder, wantStatus int, v any) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("expected status %d, got %d (body: %s)", wantStatus, w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
}

// ErrorBody is the JSON shape written by the gateway's error responses.
type ErrorBody struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// DecodeError checks the status code and decodes an error response.
func DecodeError(t testing.TB, w *httptest.ResponseRecorder, wantStatus int) ErrorBody {
	t.Helper()
	var body ErrorBody
	DecodeJSON(t, w, wantStatus, &body)
	return body
}

// NewJSONRequest builds a request with body marshaled as JSON. A string body is sent verbatim.
func NewJSONRequest(method, path string, body any) *http.Request {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithURLParams attaches chi route parameters so handlers can be called without a router.
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
