package repository

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorCredential represents a user's 2FA enrollment. One row per user.
// The shared secret is stored as opaque bytes and never re-encoded after
// creation; backup codes are stored as one-way hashes only.
type TwoFactorCredential struct {
	UserID           uuid.UUID  `db:"user_id"`
	Secret           string     `db:"secret"`
	BackupCodes      []string   `db:"backup_codes"`
	Enabled          bool       `db:"enabled"`
	SetupCompletedAt *time.Time `db:"setup_completed_at"`
	LastVerifiedAt   *time.Time `db:"last_verified_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// Session represents an authenticated device/browser context.
// TokenHash is the lookup key; the plaintext token is returned to the
// caller once at creation and never persisted or logged.
type Session struct {
	ID             uuid.UUID  `db:"id"`
	UserID         uuid.UUID  `db:"user_id"`
	TokenHash      string     `db:"token_hash"`
	Browser        string     `db:"browser"`
	OS             string     `db:"os"`
	Device         string     `db:"device"`
	IPAddress      string     `db:"ip_address"`
	Location       *string    `db:"location"`
	Active         bool       `db:"active"`
	LastActivityAt time.Time  `db:"last_activity_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Audit event status values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusWarning = "warning"
)

// Audit event risk levels
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Audit action types. Closed set; new actions are added here, never
// free-form at call sites.
const (
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionLogout             = "logout"
	ActionTwoFactorSetup     = "2fa_setup"
	ActionTwoFactorEnabled   = "2fa_enabled"
	ActionTwoFactorVerified  = "2fa_verified"
	ActionTwoFactorFailed    = "2fa_failed"
	ActionTwoFactorDisabled  = "2fa_disabled"
	ActionBackupCodeUsed     = "backup_code_used"
	ActionSessionCreated     = "session_created"
	ActionSessionTerminated  = "session_terminated"
	ActionSessionsTerminated = "sessions_terminated"
	ActionBruteForceBlocked  = "brute_force_blocked"
)

// AuditDetail is the bounded structured payload attached to an audit
// entry: a small set of known optional fields plus an opaque extra map.
type AuditDetail struct {
	Reason    string            `json:"reason,omitempty"`
	Method    string            `json:"method,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Count     int               `json:"count,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// AuditLogEntry is an append-only security event. Entries are immutable
// once written; this subsystem never updates or deletes them.
type AuditLogEntry struct {
	ID           uuid.UUID   `db:"id"`
	UserID       *uuid.UUID  `db:"user_id"`
	Action       string      `db:"action"`
	ResourceType *string     `db:"resource_type"`
	ResourceID   *string     `db:"resource_id"`
	Detail       AuditDetail `db:"detail"`
	IPAddress    string      `db:"ip_address"`
	UserAgent    string      `db:"user_agent"`
	Status       string      `db:"status"`
	RiskLevel    string      `db:"risk_level"`
	CreatedAt    time.Time   `db:"created_at"`
}

// LoginAttempt records one login attempt for brute-force detection.
// Keyed by email rather than user id since the user may not exist.
type LoginAttempt struct {
	ID            uuid.UUID `db:"id"`
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	AttemptedAt   time.Time `db:"attempted_at"`
}

// AuditQueryFilters holds the optional filters for audit log queries.
// Nil fields are not applied.
type AuditQueryFilters struct {
	UserID    *uuid.UUID
	Action    *string
	RiskLevel *string
	StartDate *time.Time
	EndDate   *time.Time
}
