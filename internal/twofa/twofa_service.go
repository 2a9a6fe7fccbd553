// Package twofa implements TOTP two-factor enrollment, verification, and
// backup-code recovery on top of the credential repository.
package twofa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avossberg/account-security/internal/audit"
	"github.com/avossberg/account-security/internal/metrics"
	"github.com/avossberg/account-security/internal/repository"
	"github.com/avossberg/account-security/internal/totp"
)

// 2FA service errors
var (
	ErrAlreadyEnabled  = errors.New("two-factor authentication is already enabled")
	ErrSetupNotStarted = errors.New("two-factor setup has not been started")
	ErrNotEnabled      = errors.New("two-factor authentication is not enabled")
)

// SetupPayload is returned from BeginSetup. The secret and backup codes
// are shown to the user exactly once and never retrievable afterwards.
type SetupPayload struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// Status describes a user's 2FA enrollment state
type Status struct {
	Enabled bool       `json:"enabled"`
	SetupAt *time.Time `json:"setup_at,omitempty"`
}

// RequestContext carries the caller-supplied origin of an operation,
// recorded on audit events.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Service implements 2FA enrollment and verification
type Service struct {
	credRepo repository.CredentialRepository
	auditor  *audit.Service
	issuer   string
	period   time.Duration
	window   int
	codes    int
	logger   *slog.Logger
}

// Config holds 2FA service configuration. TOTPWindow is a pointer so
// that an explicit zero (strict single-step verification) is
// distinguishable from unset; nil means the default of ±1.
type Config struct {
	Issuer          string
	TOTPPeriod      time.Duration
	TOTPWindow      *int
	BackupCodeCount int
}

// NewService creates a new twofa Service instance
func NewService(credRepo repository.CredentialRepository, auditor *audit.Service, cfg Config, logger *slog.Logger) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = "BizBoard"
	}
	if cfg.TOTPPeriod <= 0 {
		cfg.TOTPPeriod = totp.DefaultPeriod
	}
	window := totp.DefaultWindow
	if cfg.TOTPWindow != nil && *cfg.TOTPWindow >= 0 {
		window = *cfg.TOTPWindow
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = totp.DefaultBackupCodeCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		credRepo: credRepo,
		auditor:  auditor,
		issuer:   cfg.Issuer,
		period:   cfg.TOTPPeriod,
		window:   window,
		codes:    cfg.BackupCodeCount,
		logger:   logger,
	}
}

// GetStatus reports whether 2FA is enabled for the user. A missing
// credential is a normal negative, not an error.
func (s *Service) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return &Status{Enabled: false}, nil
		}
		return nil, err
	}

	status := &Status{Enabled: cred.Enabled}
	if cred.Enabled {
		status.SetupAt = cred.SetupCompletedAt
	}
	return status, nil
}

// BeginSetup creates a pending (disabled) credential and returns the
// one-time setup payload. A previous pending setup is replaced without
// ceremony; an enabled credential is never overwritten.
func (s *Service) BeginSetup(ctx context.Context, userID uuid.UUID, email string, rc RequestContext) (*SetupPayload, error) {
	existing, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	plainCodes, err := totp.GenerateBackupCodes(s.codes)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(plainCodes))
	for i, code := range plainCodes {
		hashes[i] = totp.HashForStorage(code)
	}

	cred := &repository.TwoFactorCredential{
		UserID:      userID,
		Secret:      secret,
		BackupCodes: hashes,
	}
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		// The upsert refuses to touch an enabled row, so a concurrent
		// VerifySetup landing after our read cannot be overwritten.
		if errors.Is(err, repository.ErrCredentialEnabled) {
			return nil, ErrAlreadyEnabled
		}
		return nil, err
	}

	s.logAudit(ctx, userID, repository.ActionTwoFactorSetup, repository.StatusSuccess, repository.RiskLow, rc, repository.AuditDetail{Method: "totp"})

	return &SetupPayload{
		Secret:          secret,
		ProvisioningURI: totp.ProvisioningURI(s.issuer, email, secret, s.period),
		BackupCodes:     plainCodes,
	}, nil
}

// VerifySetup checks the first code against a pending credential and, on
// success, enables 2FA.
func (s *Service) VerifySetup(ctx context.Context, userID uuid.UUID, code string, rc RequestContext) (bool, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return false, ErrSetupNotStarted
		}
		return false, err
	}
	if cred.Enabled {
		return false, ErrAlreadyEnabled
	}

	ok, err := totp.VerifyWithPeriod(cred.Secret, code, time.Now().UTC(), s.period, s.window)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "failure").Inc()
		s.logAudit(ctx, userID, repository.ActionTwoFactorFailed, repository.StatusFailure, repository.RiskMedium, rc, repository.AuditDetail{Reason: "invalid setup code"})
		return false, nil
	}

	// The transition is guarded in SQL; a concurrent enable wins or loses
	// there rather than by overwriting the whole row.
	enabled, err := s.credRepo.Enable(ctx, userID)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, ErrAlreadyEnabled
	}

	metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "success").Inc()
	s.logAudit(ctx, userID, repository.ActionTwoFactorEnabled, repository.StatusSuccess, repository.RiskMedium, rc, repository.AuditDetail{Method: "totp"})

	return true, nil
}

// Verify checks a TOTP or backup code against an enabled credential. The
// TOTP path is tried first; a failed TOTP match falls through to the
// backup-code path, which consumes the code on success.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, code string, rc RequestContext) (bool, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return false, ErrNotEnabled
		}
		return false, err
	}
	if !cred.Enabled {
		return false, ErrNotEnabled
	}

	now := time.Now().UTC()

	ok, err := totp.VerifyWithPeriod(cred.Secret, code, now, s.period, s.window)
	if err != nil {
		return false, err
	}
	if ok {
		// Stamp only the verification time. A full-row write here could
		// restore a backup code consumed since the read above.
		if err := s.credRepo.TouchVerified(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrCredentialNotFound) {
				return false, ErrNotEnabled
			}
			return false, err
		}
		metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "success").Inc()
		s.logAudit(ctx, userID, repository.ActionTwoFactorVerified, repository.StatusSuccess, repository.RiskLow, rc, repository.AuditDetail{Method: "totp"})
		return true, nil
	}

	// Backup-code path. Consumption is atomic at the repository so two
	// concurrent submissions of the same code succeed exactly once.
	consumed, err := s.credRepo.ConsumeBackupCode(ctx, userID, totp.HashForStorage(code))
	if err != nil {
		return false, err
	}
	if consumed {
		metrics.TwoFactorVerificationsTotal.WithLabelValues("backup_code", "success").Inc()
		s.logAudit(ctx, userID, repository.ActionBackupCodeUsed, repository.StatusSuccess, repository.RiskMedium, rc, repository.AuditDetail{Method: "backup_code"})
		return true, nil
	}

	metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "failure").Inc()
	s.logAudit(ctx, userID, repository.ActionTwoFactorFailed, repository.StatusFailure, repository.RiskMedium, rc, repository.AuditDetail{Reason: "invalid code"})

	return false, nil
}

// Disable turns 2FA off. A pending setup is deleted without ceremony; an
// enabled credential requires a successful code verification first.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code string, rc RequestContext) (bool, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}

	if cred.Enabled {
		ok, err := s.Verify(ctx, userID, code, rc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if err := s.credRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}

	if cred.Enabled {
		s.logAudit(ctx, userID, repository.ActionTwoFactorDisabled, repository.StatusSuccess, repository.RiskHigh, rc, repository.AuditDetail{})
	}

	return true, nil
}

// logAudit records one audit event; failures are logged, not surfaced,
// since the primary operation already succeeded or failed on its own.
func (s *Service) logAudit(ctx context.Context, userID uuid.UUID, action, status, risk string, rc RequestContext, detail repository.AuditDetail) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.LogEvent(ctx, audit.Event{
		Action:    action,
		UserID:    &userID,
		Detail:    detail,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Status:    status,
		RiskLevel: risk,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record audit event",
			"action", action,
			"user_id", userID,
			"error", err,
		)
	}
}
