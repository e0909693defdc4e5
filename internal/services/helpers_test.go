package services_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// mockLedger is an in-memory LedgerRepository that mirrors the SQL
// semantics: failure counts are anchored after the most recent success.
type mockLedger struct {
	attempts  []*models.LoginAttempt
	appendErr error
	countErr  error
}

func (m *mockLedger) Append(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *mockLedger) lastSuccessTime(email string) time.Time {
	var last time.Time
	for _, a := range m.attempts {
		if a.Email == email && a.Success && a.AttemptTime.After(last) {
			last = a.AttemptTime
		}
	}
	return last
}

func (m *mockLedger) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	anchor := m.lastSuccessTime(email)
	count := 0
	for _, a := range m.attempts {
		if a.Email == email && !a.Success && !a.AttemptTime.Before(since) && a.AttemptTime.After(anchor) {
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) CountFailuresForIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, a := range m.attempts {
		if a.IPAddress == ipAddress && !a.Success && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) LastFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	var last *time.Time
	for _, a := range m.attempts {
		if a.Email == email && !a.Success && !a.AttemptTime.Before(since) {
			if last == nil || a.AttemptTime.After(*last) {
				t := a.AttemptTime
				last = &t
			}
		}
	}
	return last, nil
}

func (m *mockLedger) HasSeenDevice(ctx context.Context, email, fingerprint string) (bool, error) {
	for _, a := range m.attempts {
		if a.Email == email && a.DeviceFingerprint == fingerprint && a.Success {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLedger) GetRecentForEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	matched := make([]*models.LoginAttempt, 0)
	for _, a := range m.attempts {
		if a.Email == email {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].AttemptTime.After(matched[j].AttemptTime)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// seedFailures inserts n failed attempts for email/ip, spaced into the past
func (m *mockLedger) seedFailures(email, ip string, n int, lastAt time.Time) {
	for i := 0; i < n; i++ {
		m.attempts = append(m.attempts, &models.LoginAttempt{
			Email:       email,
			IPAddress:   ip,
			Success:     false,
			AttemptTime: lastAt.Add(-time.Duration(n-1-i) * time.Minute),
		})
	}
}

// mockLockoutRepo is an in-memory LockoutRepository with the same
// one-active-lockout-per-subject idempotency as the real table.
type mockLockoutRepo struct {
	lockouts  map[string]*models.Lockout
	createErr error
	getErr    error
	nextID    int
}

func newMockLockoutRepo() *mockLockoutRepo {
	return &mockLockoutRepo{lockouts: make(map[string]*models.Lockout)}
}

func (m *mockLockoutRepo) Create(ctx context.Context, subjectKey, subjectType, reason string, expiresAt time.Time) (*models.Lockout, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if existing, ok := m.lockouts[subjectKey]; ok && existing.Active && existing.ExpiresAt.After(time.Now()) {
		return existing, nil
	}
	m.nextID++
	lockout := &models.Lockout{
		ID:          fmt.Sprintf("lockout-%d", m.nextID),
		SubjectKey:  subjectKey,
		SubjectType: subjectType,
		Reason:      reason,
		Active:      true,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	m.lockouts[subjectKey] = lockout
	return lockout, nil
}

func (m *mockLockoutRepo) GetActive(ctx context.Context, subjectKey string) (*models.Lockout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	lockout, ok := m.lockouts[subjectKey]
	if !ok || !lockout.Active || !lockout.ExpiresAt.After(time.Now()) {
		return nil, models.ErrNotFound
	}
	return lockout, nil
}

// mockAlertRepo records emitted alerts
type mockAlertRepo struct {
	alerts    []*models.SecurityAlert
	createErr error
	nextID    int
}

func (m *mockAlertRepo) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	alert.ID = fmt.Sprintf("alert-%d", m.nextID)
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

func (m *mockAlertRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	matched := make([]*models.SecurityAlert, 0)
	for _, a := range m.alerts {
		if a.UserID != nil && *a.UserID == userID {
			matched = append(matched, a)
		}
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *mockAlertRepo) byType(alertType string) []*models.SecurityAlert {
	matched := make([]*models.SecurityAlert, 0)
	for _, a := range m.alerts {
		if a.AlertType == alertType {
			matched = append(matched, a)
		}
	}
	return matched
}

// mockSessionRepo is an in-memory SessionRepository. Create supersedes
// any active session with the same (user, fingerprint) like the real
// transaction does.
type mockSessionRepo struct {
	sessions   map[string]*models.DeviceSession
	touchCount int
	nextID     int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*models.DeviceSession)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.DeviceSession) (*models.DeviceSession, error) {
	for _, s := range m.sessions {
		if s.UserID == session.UserID && s.DeviceFingerprint == session.DeviceFingerprint && s.Active {
			s.Active = false
		}
	}
	m.nextID++
	created := *session
	created.ID = fmt.Sprintf("session-%d", m.nextID)
	created.Active = true
	created.CreatedAt = time.Now()
	created.LastActivityAt = created.CreatedAt
	m.sessions[created.ID] = &created
	return &created, nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, sessionID string) (*models.DeviceSession, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *mockSessionRepo) Touch(ctx context.Context, sessionID string) error {
	session, ok := m.sessions[sessionID]
	if !ok || !session.Active {
		return models.ErrSessionNotFound
	}
	m.touchCount++
	session.LastActivityAt = time.Now()
	return nil
}

func (m *mockSessionRepo) ListActive(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	active := make([]*models.DeviceSession, 0)
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active {
			copied := *s
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (m *mockSessionRepo) Deactivate(ctx context.Context, sessionID string) error {
	session, ok := m.sessions[sessionID]
	if !ok || !session.Active {
		return models.ErrSessionNotFound
	}
	session.Active = false
	return nil
}

func (m *mockSessionRepo) DeactivateAllExcept(ctx context.Context, userID, fingerprint string) (int64, error) {
	var revoked int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.DeviceFingerprint != fingerprint && s.Active {
			s.Active = false
			revoked++
		}
	}
	return revoked, nil
}

// mockCaptcha is a scripted captcha verifier
type mockCaptcha struct {
	ok     bool
	err    error
	called int
}

func (m *mockCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	m.called++
	if m.err != nil {
		return false, m.err
	}
	return m.ok, nil
}

// mockCredentials is a scripted credential store
type mockCredentials struct {
	users  map[string]*models.User
	called int
}

func (m *mockCredentials) Verify(ctx context.Context, email, password string) (*models.User, error) {
	m.called++
	user, ok := m.users[email]
	if !ok || password != "correct-password" {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

func (m *mockCredentials) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

// mockGeo returns a fixed location
type mockGeo struct{}

func (mockGeo) Lookup(ctx context.Context, ip string) models.Geolocation {
	return models.Geolocation{Country: "Portugal", Region: "Lisboa", City: "Lisbon"}
}
