// Package session manages the lifecycle of authenticated device sessions:
// creation, listing, activity tracking, and individual or bulk termination.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avossberg/account-security/internal/audit"
	"github.com/avossberg/account-security/internal/metrics"
	"github.com/avossberg/account-security/internal/repository"
)

const (
	// DefaultTTL is the default session lifetime
	DefaultTTL = 24 * time.Hour

	// tokenSize is the session token length in bytes (256 bits)
	tokenSize = 32
)

// CreatedSession is returned from CreateSession. Token is the plaintext
// session token, surfaced exactly once; only its hash is stored.
type CreatedSession struct {
	Session repository.Session
	Token   string
}

// RequestContext carries the caller-supplied origin of an operation,
// recorded on audit events.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Service manages session lifecycle
type Service struct {
	sessionRepo repository.SessionRepository
	auditor     *audit.Service
	ttl         time.Duration
	logger      *slog.Logger
}

// NewService creates a new session Service instance
func NewService(sessionRepo repository.SessionRepository, auditor *audit.Service, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessionRepo: sessionRepo,
		auditor:     auditor,
		ttl:         ttl,
		logger:      logger,
	}
}

// HashToken returns the storage/lookup hash of a session token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession mints a new session for the user. The user agent is
// classified for display; the expiry is now + ttl (service default when
// ttl is zero).
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, ip, userAgent string, ttl time.Duration) (*CreatedSession, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	raw := make([]byte, tokenSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)

	info := ClassifyUserAgent(userAgent)
	now := time.Now().UTC()

	sess := repository.Session{
		UserID:         userID,
		TokenHash:      HashToken(token),
		Browser:        info.Browser,
		OS:             info.OS,
		Device:         info.Device,
		IPAddress:      ip,
		Active:         true,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
	}

	if err := s.sessionRepo.Insert(ctx, &sess); err != nil {
		return nil, err
	}

	metrics.SessionsCreatedTotal.Inc()
	s.logAudit(ctx, userID, repository.ActionSessionCreated, repository.RiskLow,
		RequestContext{IPAddress: ip, UserAgent: userAgent},
		repository.AuditDetail{SessionID: sess.ID.String()})

	return &CreatedSession{Session: sess, Token: token}, nil
}

// ListActiveSessions returns the user's usable sessions, most recent
// activity first. Expired rows are excluded even if still flagged active.
func (s *Service) ListActiveSessions(ctx context.Context, userID uuid.UUID) ([]repository.Session, error) {
	return s.sessionRepo.ListActive(ctx, userID)
}

// TerminateSession deactivates one session. When ownerUserID is non-nil
// the operation is scoped to that owner, so a non-owner cannot terminate
// (or probe the existence of) another account's session. Terminating a
// missing or already-terminated session returns false, never an error.
func (s *Service) TerminateSession(ctx context.Context, sessionID uuid.UUID, ownerUserID *uuid.UUID, rc RequestContext) (bool, error) {
	changed, err := s.sessionRepo.UpdateActiveFlag(ctx, sessionID, ownerUserID, false)
	if err != nil {
		return false, err
	}
	if changed == 0 {
		return false, nil
	}

	metrics.SessionsTerminatedTotal.Inc()
	if ownerUserID != nil {
		s.logAudit(ctx, *ownerUserID, repository.ActionSessionTerminated, repository.RiskMedium, rc,
			repository.AuditDetail{SessionID: sessionID.String()})
	}

	return true, nil
}

// TerminateAllOtherSessions deactivates every session of the user except
// the named one ("log out everywhere else").
func (s *Service) TerminateAllOtherSessions(ctx context.Context, userID, exceptSessionID uuid.UUID, rc RequestContext) (bool, error) {
	changed, err := s.sessionRepo.DeactivateAllExcept(ctx, userID, exceptSessionID)
	if err != nil {
		return false, err
	}
	if changed == 0 {
		return false, nil
	}

	metrics.SessionsTerminatedTotal.Add(float64(changed))
	s.logAudit(ctx, userID, repository.ActionSessionsTerminated, repository.RiskHigh, rc,
		repository.AuditDetail{SessionID: exceptSessionID.String(), Count: int(changed)})

	return true, nil
}

// TouchActivity updates last-activity on the session identified by the
// plaintext token. Returns false for unknown, terminated, or expired
// sessions.
func (s *Service) TouchActivity(ctx context.Context, token string) (bool, error) {
	return s.sessionRepo.TouchActivity(ctx, HashToken(token))
}

// logAudit records one audit event; failures are logged, not surfaced
func (s *Service) logAudit(ctx context.Context, userID uuid.UUID, action, risk string, rc RequestContext, detail repository.AuditDetail) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.LogEvent(ctx, audit.Event{
		Action:    action,
		UserID:    &userID,
		Detail:    detail,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Status:    repository.StatusSuccess,
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
