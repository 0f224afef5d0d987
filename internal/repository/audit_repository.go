package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// PostgresAuditRepository appends audit records to PostgreSQL
type PostgresAuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAuditRepository creates a new audit repository
func NewPostgresAuditRepository(db *sql.DB, logger *slog.Logger) *PostgresAuditRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAuditRepository{db: db, logger: logger}
}

// Append inserts an audit record
func (r *PostgresAuditRepository) Append(ctx context.Context, e *domain.AuditLog) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (action, entity_type, entity_id, user_id, institution_id, details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		e.Action, e.EntityType, e.EntityID, e.UserID, e.InstitutionID, nullString(string(details)), e.IPAddress, e.UserAgent,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}
