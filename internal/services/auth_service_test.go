package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/device"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/estateway/gatekeeper/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	service     *services.AuthService
	ledger      *mockLedger
	lockouts    *mockLockoutRepo
	alerts      *mockAlertRepo
	sessions    *mockSessionRepo
	credentials *mockCredentials
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	logger := newTestLogger()
	auditLogger := newTestAuditLogger()

	ledger := &mockLedger{}
	lockoutRepo := newMockLockoutRepo()
	alertRepo := &mockAlertRepo{}
	sessionRepo := newMockSessionRepo()
	credentialStore := &mockCredentials{users: map[string]*models.User{
		"user@example.com": {ID: "user-1", Email: "user@example.com", Name: "Test User"},
	}}

	lockoutService := services.NewLockoutService(lockoutRepo, logger, auditLogger)
	t.Cleanup(lockoutService.Stop)

	alertService := services.NewAlertService(alertRepo, nil, logger)

	riskService := services.NewRiskService(
		ledger, lockoutService, &mockCaptcha{ok: true},
		auth.NewBackoff(auth.BackoffConfig{Base: 1 * time.Second, Cap: 30 * time.Second}),
		alertService, credentialStore, defaultRiskConfig(), logger, auditLogger,
	)

	sessionService := services.NewSessionService(
		sessionRepo, auth.NewTokenCodec(testTokenSecret), alertService,
		defaultSessionConfig(), logger, auditLogger,
	)
	t.Cleanup(sessionService.Stop)

	authService := services.NewAuthService(
		riskService, sessionService, alertService,
		credentialStore, mockGeo{}, ledger, logger,
	)

	return &authFixture{
		service:     authService,
		ledger:      ledger,
		lockouts:    lockoutRepo,
		alerts:      alertRepo,
		sessions:    sessionRepo,
		credentials: credentialStore,
	}
}

func loginInput(email, password string) services.LoginInput {
	return services.LoginInput{
		Email:     email,
		Password:  password,
		IPAddress: "203.0.113.10",
		Signals: device.Signals{
			UserAgent:        "Mozilla/5.0",
			Language:         "en-US",
			ScreenResolution: "1920x1080",
		},
	}
}

func TestAuthServiceSecureLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	result, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "correct-password"))

	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Equal(t, "user-1", result.User.ID)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.Session.Active)
	assert.True(t, result.NewDevice, "first login from this fingerprint")

	// Success recorded in the ledger
	require.Len(t, f.ledger.attempts, 1)
	assert.True(t, f.ledger.attempts[0].Success)

	// First sign-in from an unseen device raises an alert
	assert.Len(t, f.alerts.byType(models.AlertTypeNewDevice), 1)
}

func TestAuthServiceSecureLogin_KnownDeviceIsNotFlagged(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, _, err := f.service.SecureLogin(ctx, loginInput("user@example.com", "correct-password"))
	require.NoError(t, err)

	result, _, err := f.service.SecureLogin(ctx, loginInput("user@example.com", "correct-password"))
	require.NoError(t, err)

	assert.False(t, result.NewDevice)
	assert.Len(t, f.alerts.byType(models.AlertTypeNewDevice), 1, "only the first login alerts")
}

func TestAuthServiceSecureLogin_WrongPasswordRecordsFailure(t *testing.T) {
	f := newAuthFixture(t)

	result, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "wrong"))

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, result)
	assert.Nil(t, decision)

	require.Len(t, f.ledger.attempts, 1)
	assert.False(t, f.ledger.attempts[0].Success)
	require.NotNil(t, f.ledger.attempts[0].FailureReason)
	assert.Equal(t, "invalid_credentials", *f.ledger.attempts[0].FailureReason)
}

func TestAuthServiceSecureLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.service.SecureLogin(context.Background(), loginInput("nobody@example.com", "whatever"))

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthServiceSecureLogin_GateRejectionSkipsCredentialCheck(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.lockouts.Create(context.Background(), "user@example.com", models.LockoutSubjectEmail, "test", time.Now().Add(30*time.Minute))
	require.NoError(t, err)

	result, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "correct-password"))

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, result)
	require.NotNil(t, decision)
	assert.Equal(t, services.OutcomeBlockedAccount, decision.Outcome)

	assert.Zero(t, f.credentials.called, "blocked request must not reach the credential check")
	assert.Empty(t, f.ledger.attempts, "blocked request is not a ledger attempt")
}

func TestAuthServiceSecureLogin_CaptchaGate(t *testing.T) {
	f := newAuthFixture(t)
	f.ledger.seedFailures("user@example.com", "203.0.113.10", 3, time.Now().Add(-5*time.Minute))

	_, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "correct-password"))

	assert.ErrorIs(t, err, models.ErrCaptchaRequired)
	require.NotNil(t, decision)
	assert.Equal(t, services.OutcomeCaptchaRequired, decision.Outcome)

	// With a token the login goes through
	input := loginInput("user@example.com", "correct-password")
	input.CaptchaToken = "valid-token"
	result, _, err := f.service.SecureLogin(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestAuthServiceSecureLogin_BackoffGate(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "wrong"))
	require.ErrorIs(t, err, models.ErrUnauthorized)

	// Immediate retry lands inside the 2s backoff window
	_, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "correct-password"))

	assert.ErrorIs(t, err, models.ErrRetryLater)
	require.NotNil(t, decision)
	assert.Equal(t, services.OutcomeDelayed, decision.Outcome)
	assert.Equal(t, 2*time.Second, decision.Delay)
}

func TestAuthServiceSecureLogin_LockoutAfterThreshold(t *testing.T) {
	f := newAuthFixture(t)
	// Seed 4 failures far enough in the past that no delay gate bites
	f.ledger.seedFailures("user@example.com", "203.0.113.10", 4, time.Now().Add(-30*time.Minute))

	// CAPTCHA is required at this depth; solve it so the credential
	// check runs and the 5th failure lands
	input := loginInput("user@example.com", "wrong")
	input.CaptchaToken = "valid-token"
	_, _, err := f.service.SecureLogin(context.Background(), input)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	// The account is now locked
	_, decision, err := f.service.SecureLogin(context.Background(), loginInput("user@example.com", "correct-password"))
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	require.NotNil(t, decision)
	assert.Equal(t, services.OutcomeBlockedAccount, decision.Outcome)
}

func TestAuthServiceRecentAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, _, err := f.service.SecureLogin(ctx, loginInput("user@example.com", "correct-password"))
	require.NoError(t, err)

	attempts, err := f.service.RecentAttempts(ctx, "user@example.com", 10)

	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "Lisbon", attempts[0].Geolocation.City)
}
