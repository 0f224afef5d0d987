package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const subscriptionColumns = `id, institution_id, plan_name, plan_price, billing_cycle, status,
	start_date, end_date, trial_end_date, created_at, updated_at`

// PostgresSubscriptionRepository implements domain.SubscriptionRepository using PostgreSQL
type PostgresSubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSubscriptionRepository creates a new subscription repository
func NewPostgresSubscriptionRepository(db *sql.DB, logger *slog.Logger) *PostgresSubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubscriptionRepository{db: db, logger: logger}
}

var (
	errSubscriptionNotFound = domain.NewError(domain.ErrNotFound, "Subscription not found")
	errAlreadyActive        = domain.NewError(domain.ErrInvalidState, "Subscription is already active")
	errInstitutionActive    = domain.NewError(domain.ErrInvalidState, "Institution already has an active subscription")
)

func scanSubscription(row interface{ Scan(...any) error }) (*domain.Subscription, error) {
	s := &domain.Subscription{}
	var cycle, status string
	var start, end, trial sql.NullTime
	err := row.Scan(&s.ID, &s.InstitutionID, &s.PlanName, &s.PlanPrice, &cycle, &status,
		&start, &end, &trial, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.BillingCycle = domain.BillingCycle(cycle)
	s.Status = domain.SubscriptionStatus(status)
	s.StartDate = timePtr(start)
	s.EndDate = timePtr(end)
	s.TrialEndDate = timePtr(trial)
	return s, nil
}

func querySubscription(ctx context.Context, q querier, query string, args ...any) (*domain.Subscription, error) {
	s, err := scanSubscription(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if missing(err) {
			return nil, errSubscriptionNotFound
		}
		if _, ok := constraintViolated(err); ok {
			return nil, errInstitutionActive
		}
		return nil, err
	}
	return s, nil
}

// Create inserts a subscription
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (institution_id, plan_name, plan_price, billing_cycle, status,
		                           start_date, end_date, trial_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + subscriptionColumns
	created, err := querySubscription(ctx, r.db, query,
		s.InstitutionID, s.PlanName, s.PlanPrice, string(s.BillingCycle), string(s.Status),
		nullTime(s.StartDate), nullTime(s.EndDate), nullTime(s.TrialEndDate),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	*s = *created
	return nil
}

// GetByID retrieves a subscription visible in scope
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Subscription, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	s, err := querySubscription(ctx, r.db, `SELECT `+subscriptionColumns+` FROM subscriptions`+w.String(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// Update writes the plan fields of s. Status only moves through Activate and Cancel.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_name = $1, plan_price = $2, billing_cycle = $3, trial_end_date = $4, updated_at = now()
		WHERE id = $5 AND institution_id = $6
		RETURNING ` + subscriptionColumns
	updated, err := querySubscription(ctx, r.db, query,
		s.PlanName, s.PlanPrice, string(s.BillingCycle), nullTime(s.TrialEndDate), s.ID, s.InstitutionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	*s = *updated
	return nil
}

// List returns every subscription in scope, newest first
func (r *PostgresSubscriptionRepository) List(ctx context.Context, scope domain.Scope) ([]*domain.Subscription, error) {
	w := &where{}
	w.scope("institution_id", scope)

	rows, err := r.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HasActive reports whether the institution has an ACTIVE subscription
func (r *PostgresSubscriptionRepository) HasActive(ctx context.Context, institutionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE institution_id = $1 AND status = 'ACTIVE')`,
		institutionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active subscription: %w", err)
	}
	return exists, nil
}

// Cancel marks a subscription CANCELLED and closes its period
func (r *PostgresSubscriptionRepository) Cancel(ctx context.Context, scope domain.Scope, id string, at time.Time) (*domain.Subscription, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)
	n := len(w.args)

	query := fmt.Sprintf(`UPDATE subscriptions SET status = 'CANCELLED', end_date = $%d, updated_at = now()`, n+1) +
		w.String() + ` RETURNING ` + subscriptionColumns
	s, err := querySubscription(ctx, r.db, query, append(w.args, at)...)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return s, nil
}

// Activate suspends the institution's other ACTIVE subscription and
// activates id in one transaction. The institution row lock serializes
// concurrent activations within one tenant.
func (r *PostgresSubscriptionRepository) Activate(ctx context.Context, scope domain.Scope, id string, at time.Time) (*domain.Subscription, error) {
	var activated *domain.Subscription
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		w := &where{}
		w.add("id = ?", id)
		w.scope("institution_id", scope)

		var institutionID, status string
		err := tx.QueryRowContext(ctx, `SELECT institution_id, status FROM subscriptions`+w.String(), w.args...).
			Scan(&institutionID, &status)
		if err != nil {
			if missing(err) {
				return errSubscriptionNotFound
			}
			return fmt.Errorf("failed to read subscription: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM institutions WHERE id = $1 FOR UPDATE`, institutionID); err != nil {
			return fmt.Errorf("failed to lock institution: %w", err)
		}

		// Re-read under the lock; a concurrent activation may have committed.
		if err := tx.QueryRowContext(ctx, `SELECT status FROM subscriptions WHERE id = $1`, id).Scan(&status); err != nil {
			return fmt.Errorf("failed to read subscription: %w", err)
		}
		if domain.SubscriptionStatus(status) == domain.SubscriptionActive {
			return errAlreadyActive
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET status = 'SUSPENDED', end_date = $1, updated_at = now()
			WHERE institution_id = $2 AND status = 'ACTIVE' AND id <> $3`,
			at, institutionID, id,
		)
		if err != nil {
			return fmt.Errorf("failed to suspend active subscription: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			r.logger.Info("suspended previously active subscription",
				slog.String("institution_id", institutionID),
				slog.String("activated_id", id),
			)
		}

		activated, err = querySubscription(ctx, tx, `
			UPDATE subscriptions SET status = 'ACTIVE', start_date = $1, end_date = NULL, updated_at = now()
			WHERE id = $2
			RETURNING `+subscriptionColumns, at, id)
		if err != nil {
			return fmt.Errorf("failed to activate subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// CountByInstitution counts subscriptions of an institution
func (r *PostgresSubscriptionRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	return countWhere(ctx, r.db, "subscriptions", institutionID)
}
