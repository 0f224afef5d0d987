package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security/middleware"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

var errBadBody = domain.NewError(domain.ErrValidation, "Invalid request body")

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

// writeError maps err to its HTTP status. Unexpected errors are logged and
// reported as a generic server error; their text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := statusFor(err)
	message := domain.Message(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		message = "Server error"
	}
	writeJSON(w, status, Envelope{Success: false, Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}

// caller returns the authenticated caller. Routes using it sit behind the
// authentication middleware, so a miss is a wiring bug.
func caller(r *http.Request) (domain.Caller, error) {
	c, ok := middleware.GetCallerFromContext(r.Context())
	if !ok {
		return domain.Caller{}, domain.NewError(domain.ErrUnauthenticated, "Access denied. No token provided.")
	}
	return c, nil
}

// pageFrom reads the page and limit query parameters.
func pageFrom(r *http.Request) domain.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("limit"))
	return domain.NewPage(number, size)
}

// activeFilter maps status=active|inactive to a flag; anything else is no filter.
func activeFilter(status string) *bool {
	var active bool
	switch status {
	case "active":
		active = true
	case "inactive":
		active = false
	default:
		return nil
	}
	return &active
}
