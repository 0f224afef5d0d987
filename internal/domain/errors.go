package domain

import "errors"

// Sentinel error kinds. Callers match them with errors.Is; handlers map
// each kind to one HTTP status.
var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate resource")
	ErrInvalidState       = errors.New("invalid state")
)

// Error pairs an error kind with the message shown to API clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewError returns an error of the given kind carrying a client-facing message.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Message returns the client-facing text of err, falling back to the
// text of its kind when no message was attached.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
