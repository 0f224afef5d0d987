package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const payslipColumns = `id, institution_id, staff_id, user_id, month, year, gross_pay, net_pay,
	deductions, allowances, status, file_path, file_name, upload_date, processed_at, created_at, updated_at`

// PostgresPayslipRepository implements domain.PayslipRepository using PostgreSQL
type PostgresPayslipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPayslipRepository creates a new payslip repository
func NewPostgresPayslipRepository(db *sql.DB, logger *slog.Logger) *PostgresPayslipRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPayslipRepository{db: db, logger: logger}
}

var (
	errPayslipNotFound  = domain.NewError(domain.ErrNotFound, "Payslip not found")
	errPayslipDuplicate = domain.NewError(domain.ErrDuplicate, "Payslip already exists for this staff member in the specified month and year")
)

func scanPayslip(row interface{ Scan(...any) error }) (*domain.Payslip, error) {
	p := &domain.Payslip{}
	var staffID, userID sql.NullString
	var deductions, allowances sql.NullFloat64
	var status string
	var processed sql.NullTime
	err := row.Scan(&p.ID, &p.InstitutionID, &staffID, &userID, &p.Month, &p.Year, &p.GrossPay, &p.NetPay,
		&deductions, &allowances, &status, &p.FilePath, &p.FileName, &p.UploadDate, &processed,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StaffID = staffID.String
	p.UserID = userID.String
	p.Deductions = floatPtr(deductions)
	p.Allowances = floatPtr(allowances)
	p.Status = domain.PayslipStatus(status)
	p.ProcessedAt = timePtr(processed)
	return p, nil
}

func (r *PostgresPayslipRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Payslip, error) {
	p, err := scanPayslip(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if missing(err) {
			return nil, errPayslipNotFound
		}
		if _, ok := constraintViolated(err); ok {
			return nil, errPayslipDuplicate
		}
		return nil, err
	}
	return p, nil
}

// Create inserts a payslip; the period index rejects a second payslip for
// the same staff member, month and year
func (r *PostgresPayslipRepository) Create(ctx context.Context, p *domain.Payslip) error {
	query := `
		INSERT INTO payslips (institution_id, staff_id, user_id, month, year, gross_pay, net_pay,
		                      deductions, allowances, status, file_path, file_name, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + payslipColumns
	created, err := r.queryOne(ctx, query,
		p.InstitutionID, nullString(p.StaffID), nullString(p.UserID), p.Month, p.Year, p.GrossPay, p.NetPay,
		nullFloat(p.Deductions), nullFloat(p.Allowances), string(p.Status), p.FilePath, p.FileName, p.UploadDate,
	)
	if err != nil {
		r.logger.Error("failed to create payslip",
			slog.String("institution_id", p.InstitutionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create payslip: %w", err)
	}
	*p = *created
	return nil
}

// GetByID retrieves a payslip visible in scope
func (r *PostgresPayslipRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Payslip, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	p, err := r.queryOne(ctx, `SELECT `+payslipColumns+` FROM payslips`+w.String(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get payslip: %w", err)
	}
	return p, nil
}

// Update writes the pay figures and addressing of p
func (r *PostgresPayslipRepository) Update(ctx context.Context, p *domain.Payslip) error {
	query := `
		UPDATE payslips
		SET staff_id = $1, user_id = $2, month = $3, year = $4, gross_pay = $5, net_pay = $6,
		    deductions = $7, allowances = $8, updated_at = now()
		WHERE id = $9 AND institution_id = $10
		RETURNING ` + payslipColumns
	updated, err := r.queryOne(ctx, query,
		nullString(p.StaffID), nullString(p.UserID), p.Month, p.Year, p.GrossPay, p.NetPay,
		nullFloat(p.Deductions), nullFloat(p.Allowances), p.ID, p.InstitutionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payslip: %w", err)
	}
	*p = *updated
	return nil
}

// Delete hard-deletes a payslip
func (r *PostgresPayslipRepository) Delete(ctx context.Context, scope domain.Scope, id string) error {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)

	res, err := r.db.ExecContext(ctx, `DELETE FROM payslips`+w.String(), w.args...)
	if err != nil {
		if missing(err) {
			return errPayslipNotFound
		}
		return fmt.Errorf("failed to delete payslip: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return errPayslipNotFound
	}
	return nil
}

// List returns a filtered page of payslips, latest period first
func (r *PostgresPayslipRepository) List(ctx context.Context, scope domain.Scope, filter domain.PayslipFilter, page domain.Page) ([]*domain.Payslip, int, error) {
	w := &where{}
	w.scope("institution_id", scope)
	if filter.UserID != "" {
		w.add("user_id::text = ?", filter.UserID)
	}
	if filter.StaffID != "" {
		w.add("staff_id::text = ?", filter.StaffID)
	}
	if filter.Month != "" {
		w.add("month = ?", filter.Month)
	}
	if filter.Year != 0 {
		w.add("year = ?", filter.Year)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payslips`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payslips: %w", err)
	}

	query := `SELECT ` + payslipColumns + ` FROM payslips` + w.String() +
		` ORDER BY year DESC, created_at DESC, id` + w.page(page)
	out, err := r.queryMany(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresPayslipRepository) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Payslip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payslips: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payslip
	for rows.Next() {
		p, err := scanPayslip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payslip: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttachFile records an uploaded document and puts the payslip back into PROCESSING
func (r *PostgresPayslipRepository) AttachFile(ctx context.Context, scope domain.Scope, id, filePath, fileName string, at time.Time) (*domain.Payslip, error) {
	w := &where{}
	w.add("id = ?", id)
	w.scope("institution_id", scope)
	n := len(w.args)

	query := fmt.Sprintf(`UPDATE payslips
		SET file_path = $%d, file_name = $%d, upload_date = $%d,
		    status = 'PROCESSING', processed_at = NULL, updated_at = now()`, n+1, n+2, n+3) +
		w.String() + ` RETURNING ` + payslipColumns
	w.args = append(w.args, filePath, fileName, at)
	p, err := r.queryOne(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to attach payslip file: %w", err)
	}
	return p, nil
}

// Transition moves a payslip between statuses only when it is currently in from
func (r *PostgresPayslipRepository) Transition(ctx context.Context, id string, from, to domain.PayslipStatus, at time.Time) (*domain.Payslip, error) {
	query := `
		UPDATE payslips
		SET status = $1, processed_at = $2, updated_at = now()
		WHERE id = $3 AND status = $4
		RETURNING ` + payslipColumns
	p, err := r.queryOne(ctx, query, string(to), at, id, string(from))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to transition payslip: %w", err)
	}

	// Zero rows matched: tell an unknown id apart from a stale status.
	var current string
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM payslips WHERE id = $1`, id).Scan(&current); err != nil {
		if missing(err) {
			return nil, errPayslipNotFound
		}
		return nil, fmt.Errorf("failed to read payslip status: %w", err)
	}
	return nil, domain.NewError(domain.ErrInvalidState,
		fmt.Sprintf("Payslip is %s, expected %s", current, from))
}

// FinishProcessing completes a PROCESSING payslip only while filePath is still attached
func (r *PostgresPayslipRepository) FinishProcessing(ctx context.Context, id, filePath string, to domain.PayslipStatus, at time.Time) (*domain.Payslip, error) {
	query := `
		UPDATE payslips
		SET status = $1, processed_at = $2, updated_at = now()
		WHERE id = $3 AND status = 'PROCESSING' AND file_path = $4
		RETURNING ` + payslipColumns
	p, err := r.queryOne(ctx, query, string(to), at, id, filePath)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to finish payslip: %w", err)
	}

	var current, currentPath string
	err = r.db.QueryRowContext(ctx, `SELECT status, file_path FROM payslips WHERE id = $1`, id).Scan(&current, &currentPath)
	if err != nil {
		if missing(err) {
			return nil, errPayslipNotFound
		}
		return nil, fmt.Errorf("failed to read payslip status: %w", err)
	}
	if current != string(domain.PayslipProcessing) {
		return nil, domain.NewError(domain.ErrInvalidState,
			fmt.Sprintf("Payslip is %s, expected %s", current, domain.PayslipProcessing))
	}
	return nil, domain.NewError(domain.ErrInvalidState, "Payslip document was replaced")
}

// ListStale returns PROCESSING payslips with a file uploaded before cutoff
func (r *PostgresPayslipRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Payslip, error) {
	query := `SELECT ` + payslipColumns + ` FROM payslips
		WHERE status = 'PROCESSING' AND file_path <> '' AND upload_date < $1
		ORDER BY upload_date`
	return r.queryMany(ctx, query, cutoff)
}

// CountByInstitution counts payslips of an institution
func (r *PostgresPayslipRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	return countWhere(ctx, r.db, "payslips", institutionID)
}
