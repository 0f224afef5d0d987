package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// ValidateContentType ensures POST/PUT requests with a body carry JSON or a
// multipart upload.
func ValidateContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mediaType != "application/json" && mediaType != "multipart/form-data" {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", r.Header.Get("Content-Type")),
					slog.String("method", r.Method),
				)
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SanitizePath rejects traversal patterns before routing.
func SanitizePath(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected",
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusBadRequest, "Invalid path")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
