package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credential repository errors
var (
	ErrCredentialNotFound = errors.New("two-factor credential not found")
	ErrCredentialEnabled  = errors.New("two-factor credential already enabled")
)

// CredentialRepository defines the interface for 2FA credential data access.
// State transitions are guarded in SQL, never by read-then-write in Go:
// every mutation names exactly the columns it owns, so concurrent
// operations on the same credential cannot overwrite each other's writes.
type CredentialRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*TwoFactorCredential, error)
	// Upsert inserts or replaces a PENDING credential. An enabled row is
	// never overwritten; the call fails with ErrCredentialEnabled instead.
	Upsert(ctx context.Context, cred *TwoFactorCredential) error
	// Enable flips a pending credential to enabled, stamping setup and
	// verification times. Returns false if the row is missing or already
	// enabled (a concurrent enable loses the race here, not in Go).
	Enable(ctx context.Context, userID uuid.UUID) (bool, error)
	// TouchVerified stamps last_verified_at without touching any other
	// column. Backup codes in particular are left alone.
	TouchVerified(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID uuid.UUID) error
	// ConsumeBackupCode atomically removes codeHash from the user's stored
	// backup-code set. Returns true only if the hash was present; two
	// concurrent calls with the same hash succeed exactly once.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)
}

// credentialRepository implements CredentialRepository using PostgreSQL
type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository instance
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

// GetByUserID retrieves the 2FA credential for a user
func (r *credentialRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*TwoFactorCredential, error) {
	query := `
		SELECT user_id, secret, backup_codes, enabled, setup_completed_at, last_verified_at, created_at, updated_at
		FROM two_factor_credentials
		WHERE user_id = $1
	`

	cred := &TwoFactorCredential{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.Secret,
		&cred.BackupCodes,
		&cred.Enabled,
		&cred.SetupCompletedAt,
		&cred.LastVerifiedAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// Upsert inserts or replaces a pending 2FA credential. The WHERE clause
// on the conflict update keeps an enabled row untouched even when the
// caller's earlier read saw it as pending.
func (r *credentialRepository) Upsert(ctx context.Context, cred *TwoFactorCredential) error {
	query := `
		INSERT INTO two_factor_credentials (user_id, secret, backup_codes, enabled, setup_completed_at, last_verified_at)
		VALUES ($1, $2, $3, FALSE, NULL, NULL)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			backup_codes = EXCLUDED.backup_codes,
			enabled = FALSE,
			setup_completed_at = NULL,
			last_verified_at = NULL,
			updated_at = NOW()
		WHERE two_factor_credentials.enabled = FALSE
	`

	result, err := r.pool.Exec(ctx, query,
		cred.UserID,
		cred.Secret,
		cred.BackupCodes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCredentialEnabled
	}

	return nil
}

// Enable flips a pending credential to enabled. The enabled = FALSE guard
// makes the transition race-free: of two concurrent enables, exactly one
// changes the row.
func (r *credentialRepository) Enable(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE two_factor_credentials
		SET enabled = TRUE, setup_completed_at = $1, last_verified_at = $1, updated_at = NOW()
		WHERE user_id = $2 AND enabled = FALSE
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to enable credential: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// TouchVerified stamps last_verified_at only. No other column is written,
// so a backup-code consume committing concurrently is never undone.
func (r *credentialRepository) TouchVerified(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE two_factor_credentials
		SET last_verified_at = $1, updated_at = NOW()
		WHERE user_id = $2
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to stamp verification time: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// Delete removes the 2FA credential for a user
func (r *credentialRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM two_factor_credentials WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// ConsumeBackupCode removes a backup-code hash from the stored set inside
// a transaction. The credential row is locked for the duration so that
// concurrent submissions of the same code serialize; the second one finds
// the hash already gone and returns false.
func (r *credentialRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var codes []string
	err = tx.QueryRow(ctx,
		`SELECT backup_codes FROM two_factor_credentials WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&codes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrCredentialNotFound
		}
		return false, fmt.Errorf("failed to lock credential: %w", err)
	}

	remaining := make([]string, 0, len(codes))
	found := false
	for _, c := range codes {
		if !found && c == codeHash {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}

	if !found {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE two_factor_credentials SET backup_codes = $1, last_verified_at = $2, updated_at = NOW() WHERE user_id = $3`,
		remaining, time.Now().UTC(), userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit backup code consumption: %w", err)
	}

	return true, nil
}
