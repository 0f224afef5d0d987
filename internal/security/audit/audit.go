package audit

import (
	"context"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

type requestMetaKey struct{}

// RequestMeta is the client information attached to audit entries.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// WithRequestMeta stores request metadata for later audit entries.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// MetaFromContext returns the request metadata stored in ctx, if any.
func MetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// Logger writes audit entries to the audit repository and mirrors them to
// the structured log. A failed write is logged, never returned: auditing
// does not fail the audited operation.
type Logger struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

func NewLogger(repo domain.AuditRepository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger}
}

// Entry describes one audited action.
type Entry struct {
	Action        string
	EntityType    string
	EntityID      string
	UserID        string
	InstitutionID string
	Details       map[string]any
}

// LogAction records e. A nil Logger discards entries.
func (al *Logger) LogAction(ctx context.Context, e Entry) {
	if al == nil {
		return
	}
	meta := MetaFromContext(ctx)

	al.logger.Info("audit",
		slog.String("action", e.Action),
		slog.String("entity_type", e.EntityType),
		slog.String("entity_id", e.EntityID),
		slog.String("institution_id", e.InstitutionID),
		slog.String("user_id", e.UserID),
		slog.String("request_id", meta.RequestID),
	)

	if al.repo == nil {
		return
	}
	record := &domain.AuditLog{
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		UserID:        e.UserID,
		InstitutionID: e.InstitutionID,
		Details:       e.Details,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
	}
	if err := al.repo.Append(context.WithoutCancel(ctx), record); err != nil {
		al.logger.Error("failed to persist audit entry",
			slog.String("action", e.Action),
			slog.String("error", err.Error()),
		)
	}
}

func (al *Logger) LogDenied(ctx context.Context, userID, institutionID, reason string) {
	al.LogAction(ctx, Entry{
		Action:        "access_denied",
		EntityType:    "api",
		UserID:        userID,
		InstitutionID: institutionID,
		Details:       map[string]any{"reason": reason},
	})
}
