package twofa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avossberg/account-security/internal/audit"
	"github.com/avossberg/account-security/internal/repository"
	"github.com/avossberg/account-security/internal/totp"
)

// Mock implementations for testing

// mockCredentialRepository implements repository.CredentialRepository for
// testing. afterGet, when set, runs once after the next GetByUserID has
// taken its snapshot, to model a write committing between a caller's read
// and its later write.
type mockCredentialRepository struct {
	creds    map[uuid.UUID]*repository.TwoFactorCredential
	afterGet func()
}

func newMockCredentialRepository() *mockCredentialRepository {
	return &mockCredentialRepository{
		creds: make(map[uuid.UUID]*repository.TwoFactorCredential),
	}
}

func (m *mockCredentialRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*repository.TwoFactorCredential, error) {
	cred, ok := m.creds[userID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	copied := *cred
	copied.BackupCodes = append([]string(nil), cred.BackupCodes...)
	if m.afterGet != nil {
		hook := m.afterGet
		m.afterGet = nil
		hook()
	}
	return &copied, nil
}

func (m *mockCredentialRepository) Upsert(ctx context.Context, cred *repository.TwoFactorCredential) error {
	now := time.Now().UTC()
	existing, ok := m.creds[cred.UserID]
	if ok {
		if existing.Enabled {
			return repository.ErrCredentialEnabled
		}
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	copied := *cred
	copied.Enabled = false
	copied.SetupCompletedAt = nil
	copied.LastVerifiedAt = nil
	copied.BackupCodes = append([]string(nil), cred.BackupCodes...)
	m.creds[cred.UserID] = &copied
	return nil
}

func (m *mockCredentialRepository) Enable(ctx context.Context, userID uuid.UUID) (bool, error) {
	cred, ok := m.creds[userID]
	if !ok || cred.Enabled {
		return false, nil
	}
	now := time.Now().UTC()
	cred.Enabled = true
	cred.SetupCompletedAt = &now
	cred.LastVerifiedAt = &now
	cred.UpdatedAt = now
	return true, nil
}

func (m *mockCredentialRepository) TouchVerified(ctx context.Context, userID uuid.UUID) error {
	cred, ok := m.creds[userID]
	if !ok {
		return repository.ErrCredentialNotFound
	}
	now := time.Now().UTC()
	cred.LastVerifiedAt = &now
	cred.UpdatedAt = now
	return nil
}

func (m *mockCredentialRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	if _, ok := m.creds[userID]; !ok {
		return repository.ErrCredentialNotFound
	}
	delete(m.creds, userID)
	return nil
}

func (m *mockCredentialRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	cred, ok := m.creds[userID]
	if !ok {
		return false, repository.ErrCredentialNotFound
	}
	for i, stored := range cred.BackupCodes {
		if stored == codeHash {
			cred.BackupCodes = append(cred.BackupCodes[:i], cred.BackupCodes[i+1:]...)
			now := time.Now().UTC()
			cred.LastVerifiedAt = &now
			return true, nil
		}
	}
	return false, nil
}

// mockAuditRepository implements repository.AuditRepository for testing
type mockAuditRepository struct {
	entries []repository.AuditLogEntry
}

func (m *mockAuditRepository) Append(ctx context.Context, entry *repository.AuditLogEntry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditRepository) Query(ctx context.Context, filters repository.AuditQueryFilters, limit, offset int) ([]repository.AuditLogEntry, int, error) {
	return m.entries, len(m.entries), nil
}

// mockLoginAttemptRepository implements repository.LoginAttemptRepository for testing
type mockLoginAttemptRepository struct {
	attempts []repository.LoginAttempt
}

func (m *mockLoginAttemptRepository) Insert(ctx context.Context, attempt *repository.LoginAttempt) error {
	attempt.ID = uuid.New()
	attempt.AttemptedAt = time.Now().UTC()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *mockLoginAttemptRepository) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	count := 0
	for _, a := range m.attempts {
		if a.Email == email && !a.Success && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockLoginAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newTestService() (*Service, *mockCredentialRepository, *mockAuditRepository) {
	credRepo := newMockCredentialRepository()
	auditRepo := &mockAuditRepository{}
	auditor := audit.NewService(auditRepo, &mockLoginAttemptRepository{}, audit.Config{}, nil)
	svc := NewService(credRepo, auditor, Config{Issuer: "BizBoard"}, nil)
	return svc, credRepo, auditRepo
}

func lastAuditAction(repo *mockAuditRepository) (string, string, string) {
	if len(repo.entries) == 0 {
		return "", "", ""
	}
	last := repo.entries[len(repo.entries)-1]
	return last.Action, last.Status, last.RiskLevel
}

func TestGetStatus_NoCredential(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	status, err := svc.GetStatus(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Enabled {
		t.Error("Expected disabled status for unknown user")
	}
	if status.SetupAt != nil {
		t.Error("Expected nil SetupAt for unknown user")
	}
}

func TestBeginSetup(t *testing.T) {
	svc, credRepo, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	payload, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{IPAddress: "192.0.2.1"})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	if payload.Secret == "" {
		t.Error("Expected non-empty secret")
	}
	if len(payload.BackupCodes) != totp.DefaultBackupCodeCount {
		t.Errorf("Expected %d backup codes, got %d", totp.DefaultBackupCodeCount, len(payload.BackupCodes))
	}
	if payload.ProvisioningURI == "" {
		t.Error("Expected non-empty provisioning URI")
	}

	// Credential is pending, not enabled
	status, err := svc.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Enabled {
		t.Error("Expected pending credential to report disabled")
	}

	// Stored codes are hashes, never the plaintext
	cred := credRepo.creds[userID]
	for _, plain := range payload.BackupCodes {
		for _, stored := range cred.BackupCodes {
			if stored == plain {
				t.Error("Backup code stored in plaintext")
			}
		}
	}

	action, status2, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorSetup || status2 != repository.StatusSuccess || risk != repository.RiskLow {
		t.Errorf("Unexpected audit event: %s/%s/%s", action, status2, risk)
	}
}

func TestBeginSetup_ReplacesPendingSetup(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}
	second, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("Second BeginSetup() error = %v", err)
	}
	if first.Secret == second.Secret {
		t.Error("Expected second setup to replace the pending secret")
	}

	// Old secret no longer verifies
	oldCode, err := totp.ComputeCode(first.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	ok, err := svc.VerifySetup(ctx, userID, oldCode, RequestContext{})
	if err != nil {
		t.Fatalf("VerifySetup() error = %v", err)
	}
	if ok {
		t.Error("Expected code from replaced setup to be rejected")
	}
}

func TestBeginSetup_RejectsWhenAlreadyEnabled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	enableUser(t, svc, userID)

	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); !errors.Is(err, ErrAlreadyEnabled) {
		t.Errorf("Expected ErrAlreadyEnabled, got %v", err)
	}
}

func TestVerifySetup(t *testing.T) {
	svc, _, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	payload, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}

	ok, err := svc.VerifySetup(ctx, userID, code, RequestContext{})
	if err != nil {
		t.Fatalf("VerifySetup() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected valid setup code to be accepted")
	}

	status, err := svc.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !status.Enabled {
		t.Error("Expected 2FA to be enabled after setup verification")
	}
	if status.SetupAt == nil {
		t.Error("Expected SetupAt to be recorded")
	}

	action, _, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorEnabled || risk != repository.RiskMedium {
		t.Errorf("Unexpected audit event: %s/%s", action, risk)
	}
}

func TestVerifySetup_WrongCode(t *testing.T) {
	svc, _, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	ok, err := svc.VerifySetup(ctx, userID, "000000", RequestContext{})
	if err != nil {
		t.Fatalf("VerifySetup() error = %v", err)
	}
	if ok {
		t.Error("Expected wrong code to be rejected")
	}

	// Credential stays pending, setup is not torn down
	status, err := svc.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Enabled {
		t.Error("Expected credential to remain disabled after failed verification")
	}

	action, eventStatus, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorFailed || eventStatus != repository.StatusFailure || risk != repository.RiskMedium {
		t.Errorf("Unexpected audit event: %s/%s/%s", action, eventStatus, risk)
	}
}

func TestVerifySetup_NotStarted(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.VerifySetup(context.Background(), uuid.New(), "123456", RequestContext{}); !errors.Is(err, ErrSetupNotStarted) {
		t.Errorf("Expected ErrSetupNotStarted, got %v", err)
	}
}

func TestVerify_NotEnabled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// No credential at all
	if _, err := svc.Verify(ctx, uuid.New(), "123456", RequestContext{}); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("Expected ErrNotEnabled for unknown user, got %v", err)
	}

	// Pending credential is not enabled either
	userID := uuid.New()
	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}
	if _, err := svc.Verify(ctx, userID, "123456", RequestContext{}); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("Expected ErrNotEnabled for pending credential, got %v", err)
	}
}

func TestVerify_TOTPCode(t *testing.T) {
	svc, credRepo, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	secret := enableUser(t, svc, userID)

	code, err := totp.ComputeCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}

	ok, err := svc.Verify(ctx, userID, code, RequestContext{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected valid TOTP code to be accepted")
	}

	if credRepo.creds[userID].LastVerifiedAt == nil {
		t.Error("Expected LastVerifiedAt to be updated")
	}

	action, _, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorVerified || risk != repository.RiskLow {
		t.Errorf("Unexpected audit event: %s/%s", action, risk)
	}
}

func TestVerify_BackupCodeConsumedExactlyOnce(t *testing.T) {
	svc, _, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	backupCodes := enableUserKeepCodes(t, svc, userID)
	code := backupCodes[0]

	ok, err := svc.Verify(ctx, userID, code, RequestContext{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected unused backup code to be accepted")
	}

	action, _, risk := lastAuditAction(auditRepo)
	if action != repository.ActionBackupCodeUsed || risk != repository.RiskMedium {
		t.Errorf("Unexpected audit event: %s/%s", action, risk)
	}

	// Same code again fails; it was consumed
	ok, err = svc.Verify(ctx, userID, code, RequestContext{})
	if err != nil {
		t.Fatalf("Second Verify() error = %v", err)
	}
	if ok {
		t.Error("Expected consumed backup code to be rejected")
	}

	// Remaining codes still work
	ok, err = svc.Verify(ctx, userID, backupCodes[1], RequestContext{})
	if err != nil {
		t.Fatalf("Verify() with second code error = %v", err)
	}
	if !ok {
		t.Error("Expected a different unused backup code to be accepted")
	}
}

func TestVerify_InvalidCode(t *testing.T) {
	svc, _, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	enableUser(t, svc, userID)

	ok, err := svc.Verify(ctx, userID, "000000", RequestContext{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ok {
		t.Error("Expected invalid code to be rejected")
	}

	action, eventStatus, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorFailed || eventStatus != repository.StatusFailure || risk != repository.RiskMedium {
		t.Errorf("Unexpected audit event: %s/%s/%s", action, eventStatus, risk)
	}
}

func TestVerify_TOTPDoesNotRestoreConsumedBackupCode(t *testing.T) {
	svc, credRepo, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	payload, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}
	setupCode, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	if ok, err := svc.VerifySetup(ctx, userID, setupCode, RequestContext{}); err != nil || !ok {
		t.Fatalf("VerifySetup() = %v, %v; want true, nil", ok, err)
	}

	backupCode := payload.BackupCodes[0]
	backupHash := totp.HashForStorage(backupCode)

	// A backup-code consume commits right after the TOTP verify takes its
	// credential snapshot.
	credRepo.afterGet = func() {
		consumed, err := credRepo.ConsumeBackupCode(ctx, userID, backupHash)
		if err != nil || !consumed {
			t.Fatalf("ConsumeBackupCode() = %v, %v; want true, nil", consumed, err)
		}
	}

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	ok, err := svc.Verify(ctx, userID, code, RequestContext{})
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}

	// The TOTP verify stamped last_verified_at but must not have written
	// the stale backup-code set back
	for _, h := range credRepo.creds[userID].BackupCodes {
		if h == backupHash {
			t.Fatal("Consumed backup code hash restored by concurrent TOTP verify")
		}
	}

	// The consumed code stays rejected
	ok, err = svc.Verify(ctx, userID, backupCode, RequestContext{})
	if err != nil {
		t.Fatalf("Verify() with consumed code error = %v", err)
	}
	if ok {
		t.Error("Expected consumed backup code to stay rejected")
	}
}

func TestBeginSetup_DoesNotOverwriteConcurrentEnable(t *testing.T) {
	svc, credRepo, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}
	enrolledSecret := credRepo.creds[userID].Secret

	// The pending credential gets enabled right after the second
	// BeginSetup reads it as pending.
	credRepo.afterGet = func() {
		if ok, err := credRepo.Enable(ctx, userID); err != nil || !ok {
			t.Fatalf("Enable() = %v, %v; want true, nil", ok, err)
		}
	}

	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("Expected ErrAlreadyEnabled, got %v", err)
	}

	// The enabled credential survives untouched
	cred := credRepo.creds[userID]
	if !cred.Enabled {
		t.Error("Expected credential to remain enabled")
	}
	if cred.Secret != enrolledSecret {
		t.Error("Expected enabled secret not to be replaced")
	}
}

func TestVerifySetup_ConcurrentEnableLosesRace(t *testing.T) {
	svc, credRepo, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	payload, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	// Another VerifySetup enables the credential right after this call's
	// read saw it pending.
	credRepo.afterGet = func() {
		if ok, err := credRepo.Enable(ctx, userID); err != nil || !ok {
			t.Fatalf("Enable() = %v, %v; want true, nil", ok, err)
		}
	}
	firstSetupAt := func() *time.Time { return credRepo.creds[userID].SetupCompletedAt }

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	if _, err := svc.VerifySetup(ctx, userID, code, RequestContext{}); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("Expected ErrAlreadyEnabled, got %v", err)
	}

	if firstSetupAt() == nil {
		t.Error("Expected the winning enable's setup timestamp to survive")
	}
}

func TestNewService_WindowConfiguration(t *testing.T) {
	repo := newMockCredentialRepository()

	// Unset means the default
	svc := NewService(repo, nil, Config{}, nil)
	if svc.window != totp.DefaultWindow {
		t.Errorf("Expected default window %d, got %d", totp.DefaultWindow, svc.window)
	}

	// An explicit zero is strict single-step verification, not "unset"
	zero := 0
	svc = NewService(repo, nil, Config{TOTPWindow: &zero}, nil)
	if svc.window != 0 {
		t.Errorf("Expected strict window 0, got %d", svc.window)
	}

	// Negative values fall back to the default
	negative := -2
	svc = NewService(repo, nil, Config{TOTPWindow: &negative}, nil)
	if svc.window != totp.DefaultWindow {
		t.Errorf("Expected default window %d for negative input, got %d", totp.DefaultWindow, svc.window)
	}
}

func TestDisable_PendingSetup(t *testing.T) {
	svc, credRepo, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	if _, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{}); err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	// A pending setup is abandoned without a code
	ok, err := svc.Disable(ctx, userID, "", RequestContext{})
	if err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if !ok {
		t.Error("Expected pending setup to be deleted")
	}
	if _, exists := credRepo.creds[userID]; exists {
		t.Error("Expected credential row to be removed")
	}
}

func TestDisable_EnabledRequiresValidCode(t *testing.T) {
	svc, credRepo, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	secret := enableUser(t, svc, userID)

	// Wrong code leaves 2FA enabled
	ok, err := svc.Disable(ctx, userID, "000000", RequestContext{})
	if err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if ok {
		t.Error("Expected disable with wrong code to fail")
	}
	if _, exists := credRepo.creds[userID]; !exists {
		t.Fatal("Expected credential to survive failed disable")
	}

	code, err := totp.ComputeCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}

	ok, err = svc.Disable(ctx, userID, code, RequestContext{})
	if err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected disable with valid code to succeed")
	}
	if _, exists := credRepo.creds[userID]; exists {
		t.Error("Expected credential to be deleted")
	}

	action, _, risk := lastAuditAction(auditRepo)
	if action != repository.ActionTwoFactorDisabled || risk != repository.RiskHigh {
		t.Errorf("Unexpected audit event: %s/%s", action, risk)
	}
}

func TestDisable_NoCredential(t *testing.T) {
	svc, _, _ := newTestService()

	ok, err := svc.Disable(context.Background(), uuid.New(), "", RequestContext{})
	if err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if ok {
		t.Error("Expected disable of unknown user to report false")
	}
}

// TestEnrollmentFlow walks the full lifecycle: setup, enable, verify,
// reject a wrong code without tearing anything down.
func TestEnrollmentFlow(t *testing.T) {
	svc, _, auditRepo := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	payload, err := svc.BeginSetup(ctx, userID, "user@example.com", RequestContext{IPAddress: "192.0.2.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	ok, err := svc.VerifySetup(ctx, userID, code, RequestContext{})
	if err != nil || !ok {
		t.Fatalf("VerifySetup() = %v, %v; want true, nil", ok, err)
	}

	// Fresh code for the current step verifies
	code, err = totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}
	ok, err = svc.Verify(ctx, userID, code, RequestContext{})
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}

	// A wrong code fails but does not disable 2FA
	ok, err = svc.Verify(ctx, userID, "999999", RequestContext{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ok {
		// 1-in-a-million collision with the current TOTP code
		t.Skip("candidate happened to match the current code")
	}

	status, err := svc.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !status.Enabled {
		t.Error("Expected 2FA to stay enabled after a failed verification")
	}

	wantActions := []string{
		repository.ActionTwoFactorSetup,
		repository.ActionTwoFactorEnabled,
		repository.ActionTwoFactorVerified,
		repository.ActionTwoFactorFailed,
	}
	if len(auditRepo.entries) != len(wantActions) {
		t.Fatalf("Expected %d audit entries, got %d", len(wantActions), len(auditRepo.entries))
	}
	for i, want := range wantActions {
		if auditRepo.entries[i].Action != want {
			t.Errorf("Audit entry %d: got action %q, want %q", i, auditRepo.entries[i].Action, want)
		}
	}
}

// enableUser walks a user through setup and returns the shared secret
func enableUser(t *testing.T, svc *Service, userID uuid.UUID) string {
	t.Helper()

	payload, err := svc.BeginSetup(context.Background(), userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}

	ok, err := svc.VerifySetup(context.Background(), userID, code, RequestContext{})
	if err != nil || !ok {
		t.Fatalf("VerifySetup() = %v, %v; want true, nil", ok, err)
	}

	return payload.Secret
}

// enableUserKeepCodes enables 2FA and returns the plaintext backup codes
func enableUserKeepCodes(t *testing.T, svc *Service, userID uuid.UUID) []string {
	t.Helper()

	payload, err := svc.BeginSetup(context.Background(), userID, "user@example.com", RequestContext{})
	if err != nil {
		t.Fatalf("BeginSetup() error = %v", err)
	}

	code, err := totp.ComputeCode(payload.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeCode() error = %v", err)
	}

	ok, err := svc.VerifySetup(context.Background(), userID, code, RequestContext{})
	if err != nil || !ok {
		t.Fatalf("VerifySetup() = %v, %v; want true, nil", ok, err)
	}

	return payload.BackupCodes
}
