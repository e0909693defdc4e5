package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/estateway/gatekeeper/internal/credentials"
	"github.com/estateway/gatekeeper/internal/device"
	"github.com/estateway/gatekeeper/internal/geo"
	"github.com/estateway/gatekeeper/internal/models"
)

// AttemptHistoryRepository is the read surface AuthService exposes for
// the per-account attempt history endpoint.
type AttemptHistoryRepository interface {
	GetRecentForEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// LoginInput is everything a login request carries
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	IPAddress    string
	Signals      device.Signals
}

// LoginResult is a successful login: the user, their new session, and
// its signed token. NewDevice is set when this fingerprint has never
// logged into the account before.
type LoginResult struct {
	User      *models.User
	Session   *models.DeviceSession
	Token     string
	NewDevice bool
}

// AuthService orchestrates the secure login flow: fingerprint and
// geolocation resolution, the pre-check defense gates, the credential
// check, ledger recording, and session creation.
type AuthService struct {
	risk        *RiskService
	sessions    *SessionService
	alerts      *AlertService
	credentials credentials.Verifier
	geo         geo.Resolver
	attempts    AttemptHistoryRepository
	logger      *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	risk *RiskService,
	sessions *SessionService,
	alerts *AlertService,
	credentialVerifier credentials.Verifier,
	geoResolver geo.Resolver,
	attempts AttemptHistoryRepository,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		risk:        risk,
		sessions:    sessions,
		alerts:      alerts,
		credentials: credentialVerifier,
		geo:         geoResolver,
		attempts:    attempts,
		logger:      logger,
	}
}

// SecureLogin runs a login request through the full defense pipeline.
//
// Requests rejected by a gate never reach the credential check and are
// not appended to the ledger; only attempts whose credentials were
// actually evaluated count toward the failure thresholds. The returned
// RiskDecision is non-nil whenever a gate rejected the request, so the
// caller can surface Retry-After and the user-facing reason.
func (s *AuthService) SecureLogin(ctx context.Context, input LoginInput) (*LoginResult, *RiskDecision, error) {
	fingerprint := device.Resolve(input.Signals)
	geoloc := s.geo.Lookup(ctx, input.IPAddress)

	decision := s.risk.Evaluate(ctx, input.Email, input.IPAddress, input.CaptchaToken)
	switch decision.Outcome {
	case OutcomeBlockedIP:
		return nil, decision, models.ErrIPLocked
	case OutcomeBlockedAccount:
		return nil, decision, models.ErrAccountLocked
	case OutcomeCaptchaRequired:
		return nil, decision, models.ErrCaptchaRequired
	case OutcomeDelayed:
		return nil, decision, models.ErrRetryLater
	}

	user, err := s.credentials.Verify(ctx, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			s.recordFailure(ctx, input, fingerprint, geoloc, "invalid_credentials")
			return nil, nil, models.ErrUnauthorized
		}
		return nil, nil, models.ErrInternalServer
	}

	// Checked before the success lands in the ledger, so the current
	// attempt cannot mask itself.
	newDevice := s.risk.IsNewDevice(ctx, input.Email, fingerprint)

	s.risk.RecordOutcome(ctx, &models.LoginAttempt{
		Email:             input.Email,
		IPAddress:         input.IPAddress,
		UserAgent:         input.Signals.UserAgent,
		DeviceFingerprint: fingerprint,
		Geolocation:       geoloc,
		Success:           true,
	})

	deviceInfo := models.DeviceInfo{
		UserAgent: input.Signals.UserAgent,
		Language:  input.Signals.Language,
	}

	session, token, err := s.sessions.Create(ctx, user.ID, fingerprint, deviceInfo, input.IPAddress, geoloc)
	if err != nil {
		return nil, nil, err
	}

	if newDevice {
		s.alerts.Emit(ctx, &models.SecurityAlert{
			UserID:      &user.ID,
			AlertType:   models.AlertTypeNewDevice,
			DeviceInfo:  deviceInfo,
			IPAddress:   input.IPAddress,
			Geolocation: geoloc,
			Message:     "New sign-in from a device we haven't seen on this account before.",
		})
	}

	return &LoginResult{
		User:      user,
		Session:   session,
		Token:     token,
		NewDevice: newDevice,
	}, nil, nil
}

func (s *AuthService) recordFailure(ctx context.Context, input LoginInput, fingerprint string, geoloc models.Geolocation, reason string) {
	s.risk.RecordOutcome(ctx, &models.LoginAttempt{
		Email:             input.Email,
		IPAddress:         input.IPAddress,
		UserAgent:         input.Signals.UserAgent,
		DeviceFingerprint: fingerprint,
		Geolocation:       geoloc,
		Success:           false,
		FailureReason:     &reason,
	})
}

// RecentAttempts returns the latest ledger entries for an email,
// newest first.
func (s *AuthService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	attempts, err := s.attempts.GetRecentForEmail(ctx, email, limit)
	if err != nil {
		s.logger.Error("failed to load attempt history", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return attempts, nil
}
