package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const staffColumns = `id, institution_id, name, email, employee_id, department, position, salary,
	is_active, joined_date, created_at, updated_at`

// PostgresStaffRepository implements domain.StaffRepository using PostgreSQL
type PostgresStaffRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStaffRepository creates a new staff repository
func NewPostgresStaffRepository(db *sql.DB, logger *slog.Logger) *PostgresStaffRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStaffRepository{db: db, logger: logger}
}

var (
	errStaffNotFound  = domain.NewError(domain.ErrNotFound, "Staff member not found")
	errStaffDuplicate = domain.NewError(domain.ErrDuplicate, "Staff member with this email already exists")
)

func scanStaff(row interface{ Scan(...any) error }) (*domain.Staff, error) {
	s := &domain.Staff{}
	var salary sql.NullFloat64
	var joined sql.NullTime
	err := row.Scan(&s.ID, &s.InstitutionID, &s.Name, &s.Email, &s.EmployeeID, &s.Department,
		&s.Position, &salary, &s.IsActive, &joined, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Salary = floatPtr(salary)
	s.JoinedDate = timePtr(joined)
	return s, nil
}

// Create inserts a staff member; the (institution, email) index rejects duplicates
func (r *PostgresStaffRepository) Create(ctx context.Context, s *domain.Staff) error {
	query := `
		INSERT INTO staff (institution_id, name, email, employee_id, department, position, salary, is_active, joined_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.InstitutionID, s.Name, s.Email, s.EmployeeID, s.Department, s.Position,
		nullFloat(s.Salary), s.IsActive, nullTime(s.JoinedDate),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if _, ok := constraintViolated(err); ok {
			return errStaffDuplicate
		}
		r.logger.Error("failed to create staff",
			slog.String("institution_id", s.InstitutionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return nil
}

// GetByID retrieves a staff member visible in scope
func (r *PostgresStaffRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Staff, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	s, err := scanStaff(r.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff`+w.String(), w.args...))
	if err != nil {
		if missing(err) {
			return nil, errStaffNotFound
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return s, nil
}

// Update writes every mutable column of s
func (r *PostgresStaffRepository) Update(ctx context.Context, s *domain.Staff) error {
	query := `
		UPDATE staff
		SET name = $1, email = $2, employee_id = $3, department = $4, position = $5,
		    salary = $6, is_active = $7, joined_date = $8, updated_at = now()
		WHERE id = $9 AND institution_id = $10
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.Name, s.Email, s.EmployeeID, s.Department, s.Position,
		nullFloat(s.Salary), s.IsActive, nullTime(s.JoinedDate), s.ID, s.InstitutionID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if missing(err) {
			return errStaffNotFound
		}
		if _, ok := constraintViolated(err); ok {
			return errStaffDuplicate
		}
		return fmt.Errorf("failed to update staff: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a staff member
func (r *PostgresStaffRepository) Deactivate(ctx context.Context, scope domain.Scope, id string) error {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	res, err := r.db.ExecContext(ctx, `UPDATE staff SET is_active = false, updated_at = now()`+w.String(), w.args...)
	if err != nil {
		if missing(err) {
			return errStaffNotFound
		}
		return fmt.Errorf("failed to deactivate staff: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return errStaffNotFound
	}
	return nil
}

// List returns a filtered page of staff, newest first
func (r *PostgresStaffRepository) List(ctx context.Context, scope domain.Scope, filter domain.StaffFilter, page domain.Page) ([]*domain.Staff, int, error) {
	w := &where{}
	w.scope("institution_id", scope)
	if filter.Search != "" {
		w.add(`(name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\' OR employee_id ILIKE ? ESCAPE '\')`, containsPattern(filter.Search))
	}
	if filter.Department != "" {
		w.add("department = ?", filter.Department)
	}
	if filter.Active != nil {
		w.add("is_active = ?", *filter.Active)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM staff`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count staff: %w", err)
	}

	query := `SELECT ` + staffColumns + ` FROM staff` + w.String() + ` ORDER BY created_at DESC, id` + w.page(page)
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		r.logger.Error("failed to list staff",
			slog.String("institution_id", scope.InstitutionID),
			slog.String("error", err.Error()),
		)
		return nil, 0, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var out []*domain.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan staff: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Departments returns the sorted distinct non-empty departments in scope
func (r *PostgresStaffRepository) Departments(ctx context.Context, scope domain.Scope) ([]string, error) {
	w := &where{}
	w.scope("institution_id", scope)
	w.add("department <> ?", "")

	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT department FROM staff`+w.String()+` ORDER BY department`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByInstitution counts staff rows of an institution
func (r *PostgresStaffRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	return countWhere(ctx, r.db, "staff", institutionID)
}
