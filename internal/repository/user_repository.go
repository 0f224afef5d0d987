package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const userColumns = `id, email, password_hash, name, role, phone_number, institution_id,
	is_active, last_login_at, created_at, updated_at`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user. The unique indexes on email and on the
// SUPER_ADMIN role decide races between concurrent creates.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := insertUser(ctx, r.db, user); err != nil {
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func insertUser(ctx context.Context, q querier, user *domain.User) error {
	query := `
		INSERT INTO users (email, password_hash, name, role, phone_number, institution_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Name,
		string(user.Role),
		user.PhoneNumber,
		nullString(user.InstitutionID),
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err == nil {
		return nil
	}

	if constraint, ok := constraintViolated(err); ok {
		if constraint == "users_single_super_admin" {
			return domain.NewError(domain.ErrForbidden, "Super admin already exists. Cannot create another one.")
		}
		return domain.NewError(domain.ErrDuplicate, "User with this email already exists")
	}
	return fmt.Errorf("failed to create user: %w", err)
}

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	user := &domain.User{}
	var role string
	var institutionID sql.NullString
	var lastLogin sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&user.PhoneNumber,
		&institutionID,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.InstitutionID = institutionID.String
	user.LastLoginAt = timePtr(lastLogin)
	return user, nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if missing(err) {
			return nil, domain.NewError(domain.ErrNotFound, "User not found")
		}
		r.logger.Error("failed to get user by id",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email, active or not.
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if missing(err) {
			return nil, domain.NewError(domain.ErrNotFound, "User not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// UpdatePassword replaces the stored password hash
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`

	return r.execOne(ctx, "update password", query, passwordHash, id)
}

// TouchLastLogin stamps the last successful login time
func (r *PostgresUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	return r.execOne(ctx, "touch last login", query, at, id)
}

func (r *PostgresUserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if missing(err) {
			return domain.NewError(domain.ErrNotFound, "User not found")
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewError(domain.ErrNotFound, "User not found")
	}
	return nil
}

// ExistsWithRole reports whether any user holds role
func (r *PostgresUserRepository) ExistsWithRole(ctx context.Context, role domain.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, string(role)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// CountByInstitution counts the users bound to an institution
func (r *PostgresUserRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	return countWhere(ctx, r.db, "users", institutionID)
}

func countWhere(ctx context.Context, q querier, table, institutionID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT count(*) FROM `+table+` WHERE institution_id = $1`, institutionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
