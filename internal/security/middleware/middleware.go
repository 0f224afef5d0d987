package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
	"github.com/aryan0dhankhar/payhub/internal/security/ratelimit"
)

type callerContextKey struct{}
type requestIDKey struct{}

const (
	msgRateLimited = "Too many requests from this IP, please try again later."
	msgAuthError   = "Authentication error"
)

// SessionAuthenticator resolves a bearer token to the calling user.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Caller, error)
}

// Authenticate requires a valid bearer token. Browsers cannot set headers on
// websocket upgrades, so those requests may carry the token in ?token=.
func Authenticate(sessions SessionAuthenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil && isWebsocketUpgrade(r) && r.URL.Query().Get("token") != "" {
				tokenString, err = r.URL.Query().Get("token"), nil
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, domain.Message(err))
				return
			}

			caller, err := sessions.Authenticate(r.Context(), tokenString)
			if err != nil {
				status, msg := authFailure(err)
				if status == http.StatusInternalServerError {
					log.Error("authentication failed", slog.String("error", err.Error()))
				}
				writeError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, domain.Message(err)
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.Message(err)
	default:
		return http.StatusInternalServerError, msgAuthError
	}
}

// RateLimitMiddleware limits requests per client address.
func RateLimitMiddleware(limiter *ratelimit.Limiter, ips *IPResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ips.ClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusTooManyRequests, msgRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware attaches client metadata so services can write audit
// entries without seeing the request.
func AuditMiddleware(ips *IPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithRequestMeta(r.Context(), audit.RequestMeta{
				RequestID: GetRequestID(r.Context()),
				IPAddress: ips.ClientIP(r),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID attaches a request ID to the context and response headers and
// logs each completed request.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// CORS honours the configured origins and answers preflight requests.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCallerFromContext returns the authenticated caller, if any.
func GetCallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(domain.Caller)
	return caller, ok
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
