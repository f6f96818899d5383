package http

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/gymflex/internal/application"
)

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		authN  stubAuthenticator
		code   int
	}{
		{name: "missing header", code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic member", code: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", code: http.StatusUnauthorized},
		{name: "store failure", header: "Bearer member", authN: stubAuthenticator{err: errors.New("db down")}, code: http.StatusInternalServerError},
		{name: "valid token", header: "bearer member", code: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var captured application.Principal
			handler := RequireAuth(tc.authN, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/sessions/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.code == http.StatusOK && captured != memberPrincipal {
				t.Fatalf("expected principal in context, got %+v", captured)
			}
		})
	}
}

func TestRouterRequiresAuthOnPrivateRoutes(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/sessions/", "/api/users/me/", "/api/notes/"} {
		if rec := doRequest(router, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := doRequest(router, http.MethodGet, "/api/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must be public, got %d", rec.Code)
	}
}

func TestRouterTrailingSlashAndMethods(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/sessions/s-1", "/api/sessions/s-1/"} {
		if rec := doRequest(router, http.MethodGet, path, "member", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	if rec := doRequest(router, http.MethodGet, "/api/sessions/s-1/unknown/", "member", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sub path, got %d", rec.Code)
	}
	rec := doRequest(router, http.MethodGet, "/api/sessions/s-1/book/", "member", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("expected Allow header to list POST, got %q", allow)
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Errorf("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health/", nil))

	out := buf.String()
	if !strings.Contains(out, `"msg":"request completed"`) || !strings.Contains(out, `"status":418`) {
		t.Fatalf("expected completion log with status, got %s", out)
	}
	if !strings.Contains(out, `"request_id":2`) {
		t.Fatalf("expected sequential request ids, got %s", out)
	}
}
