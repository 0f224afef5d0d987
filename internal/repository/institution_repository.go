package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const institutionColumns = `id, name, email, phone_number, address, website, is_active, created_at, updated_at`

// PostgresInstitutionRepository implements domain.InstitutionRepository using PostgreSQL
type PostgresInstitutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInstitutionRepository creates a new institution repository
func NewPostgresInstitutionRepository(db *sql.DB, logger *slog.Logger) *PostgresInstitutionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInstitutionRepository{db: db, logger: logger}
}

func duplicateInstitution(err error) error {
	if _, ok := constraintViolated(err); ok {
		return domain.NewError(domain.ErrDuplicate, "Institution with this email already exists")
	}
	return nil
}

// CreateWithAdmin inserts the institution and its first admin in one transaction
func (r *PostgresInstitutionRepository) CreateWithAdmin(ctx context.Context, inst *domain.Institution, admin *domain.User) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO institutions (name, email, phone_number, address, website, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRowContext(ctx, query,
			inst.Name, inst.Email, inst.PhoneNumber, inst.Address, inst.Website, inst.IsActive,
		).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			if dup := duplicateInstitution(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to create institution: %w", err)
		}

		admin.InstitutionID = inst.ID
		return insertUser(ctx, tx, admin)
	})
	if err != nil {
		r.logger.Warn("institution signup rolled back",
			slog.String("email", inst.Email),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func scanInstitution(row interface{ Scan(...any) error }) (*domain.Institution, error) {
	inst := &domain.Institution{}
	err := row.Scan(&inst.ID, &inst.Name, &inst.Email, &inst.PhoneNumber, &inst.Address,
		&inst.Website, &inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// GetByID retrieves an institution by ID
func (r *PostgresInstitutionRepository) GetByID(ctx context.Context, id string) (*domain.Institution, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE id = $1`

	inst, err := scanInstitution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if missing(err) {
			return nil, domain.NewError(domain.ErrNotFound, "Institution not found")
		}
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return inst, nil
}

// Update updates an existing institution's profile fields
func (r *PostgresInstitutionRepository) Update(ctx context.Context, inst *domain.Institution) error {
	query := `
		UPDATE institutions
		SET name = $1, email = $2, phone_number = $3, address = $4, website = $5, updated_at = now()
		WHERE id = $6
		RETURNING is_active, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		inst.Name, inst.Email, inst.PhoneNumber, inst.Address, inst.Website, inst.ID,
	).Scan(&inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if missing(err) {
			return domain.NewError(domain.ErrNotFound, "Institution not found")
		}
		if dup := duplicateInstitution(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update institution: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an institution (sets is_active=false)
func (r *PostgresInstitutionRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE institutions SET is_active = false, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if missing(err) {
			return domain.NewError(domain.ErrNotFound, "Institution not found")
		}
		return fmt.Errorf("failed to deactivate institution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewError(domain.ErrNotFound, "Institution not found")
	}
	return nil
}

// List returns a page of institutions, newest first
func (r *PostgresInstitutionRepository) List(ctx context.Context, filter domain.InstitutionFilter, page domain.Page) ([]*domain.Institution, int, error) {
	w := &where{}
	if filter.Search != "" {
		w.add(`(name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\')`, containsPattern(filter.Search))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM institutions`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count institutions: %w", err)
	}

	query := `SELECT ` + institutionColumns + ` FROM institutions` + w.String() + ` ORDER BY created_at DESC` + w.page(page)
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan institution: %w", err)
		}
		out = append(out, inst)
	}
	return out, total, rows.Err()
}
