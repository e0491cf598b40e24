package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/repository"
)

const uniqueViolationCode = "23505"

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row. A unique violation on email maps to
// repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	query := r.builder.Insert("exambank.users").
		Columns(
			"id",
			"full_name",
			"email",
			"password_hash",
			"password_algo",
			"role",
			"registered_at",
			"last_login",
		).
		Values(
			user.ID,
			user.FullName,
			user.Email,
			user.PasswordHash,
			user.PasswordAlgo,
			user.Role,
			user.RegisteredAt,
			user.LastLogin,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.selectUsers().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by normalized email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.selectUsers().
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// UpdateLastLogin records the latest successful login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("exambank.users").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CountByRole counts accounts holding the given role.
func (r *UserRepository) CountByRole(ctx context.Context, role domain.UserRole) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("exambank.users").
		Where(squirrel.Eq{"role": role}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count users sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}

	return count, nil
}

func (r *UserRepository) selectUsers() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"full_name",
		"email",
		"password_hash",
		"password_algo",
		"role",
		"registered_at",
		"last_login",
	).From("exambank.users")
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		lastLogin *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.Role,
		&user.RegisteredAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.LastLogin = lastLogin
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
