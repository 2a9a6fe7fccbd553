package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	// ListActive returns sessions with active = true and expiry in the
	// future, most recent activity first.
	ListActive(ctx context.Context, userID uuid.UUID) ([]Session, error)
	// UpdateActiveFlag sets the active flag on a session. When ownerUserID
	// is non-nil the update is scoped to sessions owned by that user.
	// Returns the number of rows changed.
	UpdateActiveFlag(ctx context.Context, id uuid.UUID, ownerUserID *uuid.UUID, active bool) (int64, error)
	// DeactivateAllExcept clears the active flag on all of a user's
	// sessions except the named one. Returns the number of rows changed.
	DeactivateAllExcept(ctx context.Context, userID, exceptID uuid.UUID) (int64, error)
	// TouchActivity updates last_activity_at on an active, non-expired
	// session identified by its token hash. Returns false if no such
	// session exists.
	TouchActivity(ctx context.Context, tokenHash string) (bool, error)
	// DeleteExpired removes sessions whose expiry has passed. Housekeeping
	// only; expired sessions are already invalid whether or not deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// Insert creates a new session row
func (r *sessionRepository) Insert(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (user_id, token_hash, browser, os, device, ip_address, location, active, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		session.UserID,
		session.TokenHash,
		session.Browser,
		session.OS,
		session.Device,
		session.IPAddress,
		session.Location,
		session.Active,
		session.LastActivityAt,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// ListActive returns the user's usable sessions, most recent activity first
func (r *sessionRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `
		SELECT id, user_id, token_hash, browser, os, device, ip_address, location, active, last_activity_at, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND active = TRUE AND expires_at > $2
		ORDER BY last_activity_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.TokenHash,
			&s.Browser,
			&s.OS,
			&s.Device,
			&s.IPAddress,
			&s.Location,
			&s.Active,
			&s.LastActivityAt,
			&s.ExpiresAt,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	return sessions, nil
}

// UpdateActiveFlag sets the active flag, optionally scoped to an owner
func (r *sessionRepository) UpdateActiveFlag(ctx context.Context, id uuid.UUID, ownerUserID *uuid.UUID, active bool) (int64, error) {
	query := `UPDATE sessions SET active = $1 WHERE id = $2 AND active <> $1`
	args := []interface{}{active, id}

	if ownerUserID != nil {
		query += ` AND user_id = $3`
		args = append(args, *ownerUserID)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update session active flag: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeactivateAllExcept clears active on all of a user's other sessions
func (r *sessionRepository) DeactivateAllExcept(ctx context.Context, userID, exceptID uuid.UUID) (int64, error) {
	query := `UPDATE sessions SET active = FALSE WHERE user_id = $1 AND id <> $2 AND active = TRUE`

	result, err := r.pool.Exec(ctx, query, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// TouchActivity bumps last_activity_at on a usable session
func (r *sessionRepository) TouchActivity(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		UPDATE sessions
		SET last_activity_at = $1
		WHERE token_hash = $2 AND active = TRUE AND expires_at > $1
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to touch session activity: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeleteExpired removes sessions past their expiry
func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return result.RowsAffected(), nil
}
