package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginAttemptRepository defines the interface for login attempt data access
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt *LoginAttempt) error
	// CountFailedSince counts failed attempts for an email within
	// [since, now]. Successful attempts never count.
	CountFailedSince(ctx context.Context, email string, since time.Time) (int, error)
	// DeleteBefore removes attempts older than the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// loginAttemptRepository implements LoginAttemptRepository using PostgreSQL
type loginAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository instance
func NewLoginAttemptRepository(pool *pgxpool.Pool) LoginAttemptRepository {
	return &loginAttemptRepository{pool: pool}
}

// Insert records one login attempt
func (r *loginAttemptRepository) Insert(ctx context.Context, attempt *LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, attempted_at
	`

	err := r.pool.QueryRow(ctx, query,
		strings.ToLower(attempt.Email),
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
	).Scan(&attempt.ID, &attempt.AttemptedAt)

	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}

	return nil
}

// CountFailedSince counts failed attempts for an email within the window
func (r *loginAttemptRepository) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE LOWER(email) = LOWER($1) AND success = FALSE AND attempted_at >= $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, strings.ToLower(email), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed attempts: %w", err)
	}

	return count, nil
}

// DeleteBefore removes attempts older than the given time
func (r *loginAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old login attempts: %w", err)
	}

	return result.RowsAffected(), nil
}
