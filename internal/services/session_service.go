package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/models"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
	"github.com/jellydator/ttlcache/v3"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	Create(ctx context.Context, session *models.DeviceSession) (*models.DeviceSession, error)
	GetByID(ctx context.Context, sessionID string) (*models.DeviceSession, error)
	Touch(ctx context.Context, sessionID string) error
	ListActive(ctx context.Context, userID string) ([]*models.DeviceSession, error)
	Deactivate(ctx context.Context, sessionID string) error
	DeactivateAllExcept(ctx context.Context, userID, fingerprint string) (int64, error)
}

// SessionServiceConfig holds session lifecycle settings
type SessionServiceConfig struct {
	TTL           time.Duration
	TouchDebounce time.Duration
}

// ValidationResult is the outcome of checking a session token
type ValidationResult struct {
	Valid   bool                  `json:"valid"`
	Reason  string                `json:"reason,omitempty"`
	Session *models.DeviceSession `json:"session,omitempty"`
}

// ScanResult is the outcome of a duplicate-session scan
type ScanResult struct {
	Sessions        []models.SessionView `json:"sessions"`
	IsDuplicate     bool                 `json:"is_duplicate"`
	DistinctDevices int                  `json:"distinct_devices"`
}

// SessionService manages per-device sessions: creation on login,
// activity heartbeats, validity checks, listing, revocation, and
// duplicate detection across devices.
//
// Sessions expire by timestamp comparison only. A session past its
// TTL is deactivated by whichever call notices first (Validate, the
// auth middleware, or the reaper); no timers are held per session.
type SessionService struct {
	repo        SessionRepository
	codec       *auth.TokenCodec
	alerts      *AlertService
	config      SessionServiceConfig
	touchSeen   *ttlcache.Cache[string, struct{}]
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(
	repo SessionRepository,
	codec *auth.TokenCodec,
	alerts *AlertService,
	config SessionServiceConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SessionService {
	touchSeen := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](config.TouchDebounce),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go touchSeen.Start()

	return &SessionService{
		repo:        repo,
		codec:       codec,
		alerts:      alerts,
		config:      config,
		touchSeen:   touchSeen,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create opens a session for the user on the given device and returns
// it with a signed token. The TTL is fixed at creation; activity does
// not extend it.
func (s *SessionService) Create(ctx context.Context, userID, fingerprint string, info models.DeviceInfo, ipAddress string, geoloc models.Geolocation) (*models.DeviceSession, string, error) {
	session := &models.DeviceSession{
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		DeviceInfo:        info,
		IPAddress:         ipAddress,
		Geolocation:       geoloc,
		ExpiresAt:         time.Now().Add(s.config.TTL),
	}

	created, err := s.repo.Create(ctx, session)
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	token, err := s.codec.Issue(created)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("session_id", created.ID), slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	s.auditLogger.LogSessionEvent("session_created", userID, created.ID, map[string]string{
		"device_fingerprint": fingerprint,
	})

	return created, token, nil
}

// CheckSession returns the session iff it is active and unexpired.
// An expired session is deactivated as a side effect and a
// session_expired alert is raised; the caller must sign the client
// out.
func (s *SessionService) CheckSession(ctx context.Context, sessionID string) (*models.DeviceSession, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, models.ErrSessionNotFound
		}
		s.logger.Error("failed to load session", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !session.Active {
		return nil, models.ErrSessionRevoked
	}

	if session.Expired(time.Now()) {
		s.expireSession(ctx, session)
		return nil, models.ErrSessionExpired
	}

	return session, nil
}

func (s *SessionService) expireSession(ctx context.Context, session *models.DeviceSession) {
	if err := s.repo.Deactivate(ctx, session.ID); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		s.logger.Error("failed to deactivate expired session", slog.String("session_id", session.ID), slog.Any("error", err))
	}

	s.alerts.Emit(ctx, &models.SecurityAlert{
		UserID:      &session.UserID,
		AlertType:   models.AlertTypeSessionExpired,
		DeviceInfo:  session.DeviceInfo,
		IPAddress:   session.IPAddress,
		Geolocation: session.Geolocation,
		Message:     "Your session expired and you were signed out.",
	})

	s.auditLogger.LogSessionEvent("session_expired", session.UserID, session.ID, nil)
}

// Validate checks a session token end to end. Clients poll this to
// detect remote revocation and expiry.
func (s *SessionService) Validate(ctx context.Context, tokenString string) (*ValidationResult, error) {
	claims, err := s.codec.Parse(tokenString)
	if err != nil {
		return &ValidationResult{Valid: false, Reason: "invalid token"}, nil
	}

	session, err := s.CheckSession(ctx, claims.SessionID)
	switch {
	case err == nil:
		return &ValidationResult{Valid: true, Session: session}, nil
	case errors.Is(err, models.ErrSessionExpired):
		return &ValidationResult{Valid: false, Reason: "session expired"}, nil
	case errors.Is(err, models.ErrSessionRevoked):
		return &ValidationResult{Valid: false, Reason: "session revoked"}, nil
	case errors.Is(err, models.ErrSessionNotFound):
		return &ValidationResult{Valid: false, Reason: "session not found"}, nil
	default:
		return nil, err
	}
}

// Touch records client activity on the session. Calls are debounced
// server-side: repeat touches inside the debounce window are dropped
// without a store write. Best effort, a lost touch costs nothing but a
// stale last-activity timestamp.
func (s *SessionService) Touch(ctx context.Context, tokenString string) error {
	claims, err := s.codec.Parse(tokenString)
	if err != nil {
		return models.ErrUnauthorized
	}

	if s.touchSeen.Has(claims.SessionID) {
		return nil
	}
	s.touchSeen.Set(claims.SessionID, struct{}{}, ttlcache.DefaultTTL)

	if err := s.repo.Touch(ctx, claims.SessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.ErrSessionNotFound
		}
		s.logger.Error("failed to touch session", slog.String("session_id", claims.SessionID), slog.Any("error", err))
	}

	return nil
}

// List returns the user's active sessions
func (s *SessionService) List(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	sessions, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list sessions", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return sessions, nil
}

// Scan lists the user's active sessions and detects duplicates:
// more than one distinct fingerprint concurrently active. The session
// whose fingerprint matches the caller's is marked current; if none
// matches, none is. A duplicate raises a multiple_sessions alert.
func (s *SessionService) Scan(ctx context.Context, userID, callerFingerprint string) (*ScanResult, error) {
	sessions, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	distinct := make(map[string]struct{}, len(sessions))
	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		distinct[session.DeviceFingerprint] = struct{}{}
		views = append(views, models.SessionView{
			ID:             session.ID,
			DeviceInfo:     session.DeviceInfo,
			IPAddress:      session.IPAddress,
			Geolocation:    session.Geolocation,
			Current:        session.DeviceFingerprint == callerFingerprint,
			CreatedAt:      session.CreatedAt,
			LastActivityAt: session.LastActivityAt,
			ExpiresAt:      session.ExpiresAt,
		})
	}

	result := &ScanResult{
		Sessions:        views,
		IsDuplicate:     len(distinct) > 1,
		DistinctDevices: len(distinct),
	}

	if result.IsDuplicate {
		s.alerts.Emit(ctx, &models.SecurityAlert{
			UserID:    &userID,
			AlertType: models.AlertTypeMultipleSessions,
			Message:   fmt.Sprintf("Your account is signed in on %d devices.", result.DistinctDevices),
		})

		s.auditLogger.LogSessionEvent("duplicate_sessions_detected", userID, "", map[string]string{
			"distinct_devices": strconv.Itoa(result.DistinctDevices),
		})
	}

	return result, nil
}

// Revoke deactivates one of the user's sessions. Revoking a session
// that belongs to someone else is ErrForbidden.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.ErrSessionNotFound
		}
		s.logger.Error("failed to load session for revoke", slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if session.UserID != userID {
		return models.ErrForbidden
	}

	if err := s.repo.Deactivate(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.ErrSessionNotFound
		}
		s.logger.Error("failed to revoke session", slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogSessionEvent("session_revoked", userID, sessionID, nil)
	return nil
}

// RevokeAllOthers deactivates every active session of the user except
// the caller's device, in one conditional bulk update. A session
// created concurrently with the revoke is not part of the snapshot
// and survives; the next scan will pick it up.
func (s *SessionService) RevokeAllOthers(ctx context.Context, userID, callerFingerprint string) (int64, error) {
	revoked, err := s.repo.DeactivateAllExcept(ctx, userID, callerFingerprint)
	if err != nil {
		s.logger.Error("failed to revoke other sessions", slog.String("user_id", userID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if revoked > 0 {
		s.auditLogger.LogSessionEvent("other_sessions_revoked", userID, "", map[string]string{
			"revoked_count": strconv.FormatInt(revoked, 10),
		})
	}

	return revoked, nil
}

// Stop shuts down the debounce cache janitor
func (s *SessionService) Stop() {
	s.touchSeen.Stop()
}
