// Package audit records security events and implements sliding-window
// brute-force protection over login attempts.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avossberg/account-security/internal/metrics"
	"github.com/avossberg/account-security/internal/repository"
)

// Audit service errors
var (
	ErrUnknownAction    = errors.New("unknown audit action type")
	ErrInvalidStatus    = errors.New("invalid audit status")
	ErrInvalidRiskLevel = errors.New("invalid audit risk level")
)

// Brute force protection defaults
const (
	DefaultMaxFailedAttempts = 5
	DefaultAttemptWindow     = 15 * time.Minute
)

// knownActions is the closed set of recordable action types
var knownActions = map[string]bool{
	repository.ActionLogin:              true,
	repository.ActionLoginFailed:        true,
	repository.ActionLogout:             true,
	repository.ActionTwoFactorSetup:     true,
	repository.ActionTwoFactorEnabled:   true,
	repository.ActionTwoFactorVerified:  true,
	repository.ActionTwoFactorFailed:    true,
	repository.ActionTwoFactorDisabled:  true,
	repository.ActionBackupCodeUsed:     true,
	repository.ActionSessionCreated:     true,
	repository.ActionSessionTerminated:  true,
	repository.ActionSessionsTerminated: true,
	repository.ActionBruteForceBlocked:  true,
}

var validStatuses = map[string]bool{
	repository.StatusSuccess: true,
	repository.StatusFailure: true,
	repository.StatusWarning: true,
}

var validRiskLevels = map[string]bool{
	repository.RiskLow:      true,
	repository.RiskMedium:   true,
	repository.RiskHigh:     true,
	repository.RiskCritical: true,
}

// Event describes one security event to record. Status defaults to
// success and RiskLevel to low; callers choose the risk level, the
// service never infers it.
type Event struct {
	Action       string
	UserID       *uuid.UUID
	ResourceType *string
	ResourceID   *string
	Detail       repository.AuditDetail
	IPAddress    string
	UserAgent    string
	Status       string
	RiskLevel    string
}

// BruteForceStatus is the result of a brute-force check. BlockedUntil is
// advisory, computed as now + window at check time; the lockout itself is
// a rolling window, not a stored deadline.
type BruteForceStatus struct {
	Blocked           bool       `json:"blocked"`
	RemainingAttempts int        `json:"remaining_attempts"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

// Service records audit events and login attempts
type Service struct {
	auditRepo   repository.AuditRepository
	attemptRepo repository.LoginAttemptRepository
	window      time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Config holds audit service configuration
type Config struct {
	BruteForceWindow      time.Duration
	BruteForceMaxAttempts int
}

// NewService creates a new audit Service instance
func NewService(auditRepo repository.AuditRepository, attemptRepo repository.LoginAttemptRepository, cfg Config, logger *slog.Logger) *Service {
	if cfg.BruteForceWindow <= 0 {
		cfg.BruteForceWindow = DefaultAttemptWindow
	}
	if cfg.BruteForceMaxAttempts <= 0 {
		cfg.BruteForceMaxAttempts = DefaultMaxFailedAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auditRepo:   auditRepo,
		attemptRepo: attemptRepo,
		window:      cfg.BruteForceWindow,
		maxAttempts: cfg.BruteForceMaxAttempts,
		logger:      logger,
	}
}

// LogEvent appends one immutable audit entry
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if !knownActions[event.Action] {
		return ErrUnknownAction
	}
	if event.Status == "" {
		event.Status = repository.StatusSuccess
	}
	if !validStatuses[event.Status] {
		return ErrInvalidStatus
	}
	if event.RiskLevel == "" {
		event.RiskLevel = repository.RiskLow
	}
	if !validRiskLevels[event.RiskLevel] {
		return ErrInvalidRiskLevel
	}

	entry := &repository.AuditLogEntry{
		UserID:       event.UserID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Detail:       event.Detail,
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
		Status:       event.Status,
		RiskLevel:    event.RiskLevel,
	}

	if err := s.auditRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	metrics.AuditEventsTotal.WithLabelValues(event.Action, event.RiskLevel).Inc()

	s.logger.InfoContext(ctx, "Audit event recorded",
		"action", event.Action,
		"status", event.Status,
		"risk_level", event.RiskLevel,
	)

	return nil
}

// QueryEvents returns a filtered, paginated, reverse-chronological page of
// entries. The returned total reflects the filtered set independent of limit.
func (s *Service) QueryEvents(ctx context.Context, filters repository.AuditQueryFilters, limit, offset int) ([]repository.AuditLogEntry, int, error) {
	return s.auditRepo.Query(ctx, filters, limit, offset)
}

// RecordLoginAttempt appends one login attempt row
func (s *Service) RecordLoginAttempt(ctx context.Context, email, ip, userAgent string, success bool, failureReason *string) error {
	attempt := &repository.LoginAttempt{
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: failureReason,
	}

	if err := s.attemptRepo.Insert(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}

	return nil
}

// CheckBruteForce counts failed attempts for the email within the rolling
// window. An attempt that has aged out of the window no longer counts.
func (s *Service) CheckBruteForce(ctx context.Context, email string) (*BruteForceStatus, error) {
	now := time.Now().UTC()
	since := now.Add(-s.window)

	failed, err := s.attemptRepo.CountFailedSince(ctx, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check brute force status: %w", err)
	}

	status := &BruteForceStatus{
		Blocked:           failed >= s.maxAttempts,
		RemainingAttempts: s.maxAttempts - failed,
	}
	if status.RemainingAttempts < 0 {
		status.RemainingAttempts = 0
	}
	if status.Blocked {
		until := now.Add(s.window)
		status.BlockedUntil = &until
		metrics.BruteForceBlocksTotal.Inc()
	}

	return status, nil
}
