package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security/ratelimit"
)

type stubSessions struct {
	caller domain.Caller
	err    error
}

func (s stubSessions) Authenticate(_ context.Context, token string) (domain.Caller, error) {
	if s.err != nil {
		return domain.Caller{}, s.err
	}
	return s.caller, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Fatalf("expected success=false")
	}
	return body.Error
}

func TestAuthenticateMissingToken(t *testing.T) {
	h := Authenticate(stubSessions{}, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Access denied. No token provided." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAuthenticateStoresCaller(t *testing.T) {
	want := domain.Caller{ID: "u1", Role: domain.RoleStaff, InstitutionID: "i1"}
	var got domain.Caller
	h := Authenticate(stubSessions{caller: want}, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetCallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != want {
		t.Fatalf("expected caller %+v, got %+v", want, got)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	sessions := stubSessions{err: domain.NewError(domain.ErrTokenExpired, "Token expired")}
	h := Authenticate(sessions, quietLogger())(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Token expired" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAuthenticateQueryTokenOnlyForWebsocket(t *testing.T) {
	h := Authenticate(stubSessions{caller: domain.Caller{ID: "u1"}}, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	plain := httptest.NewRecorder()
	h.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/api/payslips/p1/events?token=abc", nil))
	if plain.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token without upgrade, got %d", plain.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/payslips/p1/events?token=abc", nil)
	req.Header.Set("Upgrade", "websocket")
	upgraded := httptest.NewRecorder()
	h.ServeHTTP(upgraded, req)
	if upgraded.Code != http.StatusTeapot {
		t.Fatalf("expected handler to run, got %d", upgraded.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, time.Minute)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, nil, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/staff", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if msg := decodeError(t, last); msg != msgRateLimited {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/staff", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestClientIPIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	ips, err := NewIPResolver([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if ip := ips.ClientIP(req); ip != "198.51.100.7" {
		t.Fatalf("expected socket address, got %q", ip)
	}

	var none *IPResolver
	if ip := none.ClientIP(req); ip != "198.51.100.7" {
		t.Fatalf("nil resolver: expected socket address, got %q", ip)
	}
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	ips, err := NewIPResolver([]string{"10.0.0.0/8", "192.0.2.10"})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9, 192.0.2.10")
	// 1.1.1.1 was supplied by the client; the proxy chain vouches for 203.0.113.9.
	if ip := ips.ClientIP(req); ip != "203.0.113.9" {
		t.Fatalf("expected nearest untrusted hop, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	if ip := ips.ClientIP(req); ip != "10.1.2.3" {
		t.Fatalf("expected proxy address without header, got %q", ip)
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, time.Minute)
	defer limiter.Stop()
	ips, err := NewIPResolver(nil)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	h := RateLimitMiddleware(limiter, ips, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/staff", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 despite rotating X-Forwarded-For, got %d", last.Code)
	}
}

func TestNewIPResolverRejectsGarbage(t *testing.T) {
	if _, err := NewIPResolver([]string{"not-an-ip"}); err == nil {
		t.Fatalf("expected an error")
	}
}
