package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
)

var (
	errSessionUser         = domain.NewError(domain.ErrUnauthenticated, "User not found or inactive")
	errInstitutionInactive = domain.NewError(domain.ErrUnauthenticated, "Institution is inactive")
)

// SessionAuthenticator resolves a bearer token to a live caller. The user
// is reloaded on every request so deactivation takes effect immediately.
type SessionAuthenticator struct {
	tokens *auth.TokenManager
	users  domain.UserRepository
	gate   *InstitutionGate
	logger *slog.Logger
}

func NewSessionAuthenticator(tokens *auth.TokenManager, users domain.UserRepository, gate *InstitutionGate, logger *slog.Logger) *SessionAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthenticator{tokens: tokens, users: users, gate: gate, logger: logger}
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (domain.Caller, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			metrics.ObserveAuthFailure("token_expired")
		default:
			metrics.ObserveAuthFailure("invalid_token")
		}
		return domain.Caller{}, err
	}

	user, err := a.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ObserveAuthFailure("unknown_user")
			return domain.Caller{}, errSessionUser
		}
		return domain.Caller{}, fmt.Errorf("load session user: %w", err)
	}
	if !user.IsActive {
		metrics.ObserveAuthFailure("inactive_user")
		return domain.Caller{}, errSessionUser
	}

	active, err := a.gate.Active(ctx, user.InstitutionID)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("check institution: %w", err)
	}
	if !active {
		metrics.ObserveAuthFailure("inactive_institution")
		a.logger.Info("session rejected for inactive institution",
			slog.String("user_id", user.ID),
			slog.String("institution_id", user.InstitutionID),
		)
		return domain.Caller{}, errInstitutionInactive
	}

	return domain.Caller{
		ID:            user.ID,
		Email:         user.Email,
		Role:          user.Role,
		InstitutionID: user.InstitutionID,
	}, nil
}
