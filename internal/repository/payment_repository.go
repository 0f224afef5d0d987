package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const paymentColumns = `id, institution_id, subscription_id, amount, currency, description, status,
	external_reference, created_at, updated_at`

// PostgresPaymentRepository implements domain.PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPaymentRepository creates a new payment repository
func NewPostgresPaymentRepository(db *sql.DB, logger *slog.Logger) *PostgresPaymentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPaymentRepository{db: db, logger: logger}
}

var errPaymentNotFound = domain.NewError(domain.ErrNotFound, "Payment not found")

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	p := &domain.Payment{}
	var subscriptionID sql.NullString
	var status string
	err := row.Scan(&p.ID, &p.InstitutionID, &subscriptionID, &p.Amount, &p.Currency, &p.Description,
		&status, &p.ExternalReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.SubscriptionID = subscriptionID.String
	p.Status = domain.PaymentStatus(status)
	return p, nil
}

func (r *PostgresPaymentRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if missing(err) {
			return nil, errPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create inserts a payment
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (institution_id, subscription_id, amount, currency, description, status, external_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + paymentColumns
	created, err := r.queryOne(ctx, query,
		p.InstitutionID, nullString(p.SubscriptionID), p.Amount, p.Currency, p.Description,
		string(p.Status), p.ExternalReference,
	)
	if err != nil {
		r.logger.Error("failed to create payment",
			slog.String("institution_id", p.InstitutionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create payment: %w", err)
	}
	*p = *created
	return nil
}

// GetByID retrieves a payment visible in scope
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Payment, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	p, err := r.queryOne(ctx, `SELECT `+paymentColumns+` FROM payments`+w.String(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// Update writes the descriptive fields of p. Status only moves through Transition.
func (r *PostgresPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET subscription_id = $1, amount = $2, currency = $3, description = $4, updated_at = now()
		WHERE id = $5 AND institution_id = $6
		RETURNING ` + paymentColumns
	updated, err := r.queryOne(ctx, query,
		nullString(p.SubscriptionID), p.Amount, p.Currency, p.Description, p.ID, p.InstitutionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	*p = *updated
	return nil
}

// Delete hard-deletes a payment
func (r *PostgresPaymentRepository) Delete(ctx context.Context, scope domain.Scope, id string) error {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	res, err := r.db.ExecContext(ctx, `DELETE FROM payments`+w.String(), w.args...)
	if err != nil {
		if missing(err) {
			return errPaymentNotFound
		}
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return errPaymentNotFound
	}
	return nil
}

// List returns a filtered page of payments, newest first
func (r *PostgresPaymentRepository) List(ctx context.Context, scope domain.Scope, filter domain.PaymentFilter, page domain.Page) ([]*domain.Payment, int, error) {
	w := &where{}
	w.scope("institution_id", scope)
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.SubscriptionID != "" {
		w.add("subscription_id::text = ?", filter.SubscriptionID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payments`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments`+w.String()+` ORDER BY created_at DESC, id`+w.page(page), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Transition is a conditional status update: it only matches a row whose
// status is still from, so a replayed process or refund cannot apply twice.
func (r *PostgresPaymentRepository) Transition(ctx context.Context, scope domain.Scope, id string, from, to domain.PaymentStatus, reference string) (*domain.Payment, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)
	w.add("status = ?", string(from))
	n := len(w.args)

	query := fmt.Sprintf(`UPDATE payments
		SET status = $%d, external_reference = COALESCE(NULLIF($%d, ''), external_reference), updated_at = now()`, n+1, n+2) +
		w.String() + ` RETURNING ` + paymentColumns
	p, err := r.queryOne(ctx, query, append(w.args, string(to), reference)...)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to transition payment: %w", err)
	}

	// No row matched; distinguish a missing payment from one in another status.
	if _, getErr := r.GetByID(ctx, scope, id); getErr != nil {
		return nil, getErr
	}
	return nil, invalidPaymentTransition(from)
}

func invalidPaymentTransition(from domain.PaymentStatus) error {
	if from == domain.PaymentCompleted {
		return domain.NewError(domain.ErrInvalidState, "Only completed payments can be refunded")
	}
	return domain.NewError(domain.ErrInvalidState, "Payment is not pending")
}
