package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ============ AdminAuth ============

func TestAdminAuth(t *testing.T) {
	hash, err := crypto.HashToken("s3cret-admin", 4)
	if err != nil {
		t.Fatal(err)
	}

	handler := AdminAuth(hash, utils.NewNopLogger())(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic czNjcmV0LWFkbWlu", http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret-admin", http.StatusOK},
		{"lowercase scheme", "bearer s3cret-admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/reset-trading", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"code":"unauthorized"`) {
				t.Errorf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestAdminAuth_NoHashPassesThrough(t *testing.T) {
	handler := AdminAuth("", utils.NewNopLogger())(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/accounts/0000000001", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// ============ CORS ============

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://dash.example.com"})(http.HandlerFunc(okHandler))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders/webhook", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Error("preflight must not reach the handler")
		}
	})
}

func TestCORS_AllowAll(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// ============ Recovery / Logging ============

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(utils.NewNopLogger())(panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("panic value leaked to client: %q", rec.Body.String())
	}
}

func TestLogging_RequestIDAndStatus(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Logging(utils.NewNopLogger()))

	var seenID string
	router.HandleFunc("/api/v1/accounts/{clientId}", func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/0000000001", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
		id := rec.Header().Get(RequestIDHeader)
		if id == "" || id != seenID {
			t.Errorf("request id header %q, handler saw %q", id, seenID)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/0000000001", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Header().Get(RequestIDHeader) != "req-42" || seenID != "req-42" {
			t.Errorf("request id not propagated: header=%q seen=%q", rec.Header().Get(RequestIDHeader), seenID)
		}
	})
}

func TestRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/api/v1/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		got = routeTemplate(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))
	if got != "/api/v1/orders/{orderId}" {
		t.Errorf("routeTemplate = %q", got)
	}

	if routeTemplate(httptest.NewRequest(http.MethodGet, "/x", nil)) != "unmatched" {
		t.Error("request without route must map to unmatched")
	}
}
