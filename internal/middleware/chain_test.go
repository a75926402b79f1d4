package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/learnhub/internal/auth"
)

// --- モック定義 ---

type recordedRequest struct {
	method string
	route  string
	status int
}

type mockMetricsCollector struct {
	requests []recordedRequest
}

func (m *mockMetricsCollector) RecordHTTPRequest(method, route string, statusCode int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method: method, route: route, status: statusCode})
}
func (m *mockMetricsCollector) RecordLogin(string, bool)      {}
func (m *mockMetricsCollector) RecordRegistration()           {}
func (m *mockMetricsCollector) RecordEnrollments(string, int) {}
func (m *mockMetricsCollector) RecordTokenRejection(string)   {}

// TestMetricsMiddleware_RecordsRoutePattern はIDではなくルートパターンで記録されることを検証する。
func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	collector := &mockMetricsCollector{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(collector))
	r.Get("/api/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/courses/abc-123", nil))

	if len(collector.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(collector.requests))
	}
	got := collector.requests[0]
	if got.route != "/api/courses/{id}" {
		t.Errorf("route = %q, want %q", got.route, "/api/courses/{id}")
	}
	if got.status != http.StatusNotFound || got.method != http.MethodGet {
		t.Errorf("recorded = %+v", got)
	}
}

// TestMiddlewareChain_AdminGroup はchiのルートグループに載せた管理者ゲートが
// 外側のリカバリー・セキュリティヘッダーと共存することを検証する。
func TestMiddlewareChain_AdminGroup(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyTokenFn: func(token string) (*auth.Claims, error) {
			if token == "admin-token" {
				return adminClaims(), nil
			}
			return employeeClaims("emp-1"), nil
		},
	}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(nil))
	r.Use(NewSecurityHeadersMiddleware(true))
	r.Group(func(r chi.Router) {
		r.Use(NewAdminAuthMiddleware(verifier, nil))
		r.Get("/api/admin/dashboard", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/api/admin/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"admin passes", "/api/admin/dashboard", "admin-token", http.StatusOK},
		{"employee forbidden", "/api/admin/dashboard", "employee-token", http.StatusForbidden},
		{"no token", "/api/admin/dashboard", "", http.StatusUnauthorized},
		{"panic recovered", "/api/admin/panic", "admin-token", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: AdminCookieName, Value: tt.token})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers should be set on every response")
			}
			if w.Header().Get("Strict-Transport-Security") == "" {
				t.Error("HSTS should be set in production")
			}
			if w.Header().Get("Cache-Control") != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store for /api", w.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestRecoveryMiddleware_WritesUnifiedError(t *testing.T) {
	handler := NewRecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/courses", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}

func TestSecurityHeaders_DevelopmentOmitsHSTS(t *testing.T) {
	handler := NewSecurityHeadersMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should not be set outside production")
	}
	if w.Header().Get("Cache-Control") != "" {
		t.Error("Cache-Control should only be set for /api paths")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", w.Header().Get("X-Frame-Options"))
	}
}
