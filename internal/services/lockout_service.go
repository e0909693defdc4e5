package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
	"github.com/jellydator/ttlcache/v3"
)

// LockoutRepository defines the interface for lockout persistence
type LockoutRepository interface {
	Create(ctx context.Context, subjectKey, subjectType, reason string, expiresAt time.Time) (*models.Lockout, error)
	GetActive(ctx context.Context, subjectKey string) (*models.Lockout, error)
}

// LockoutService manages time-boxed blocks on subject keys (emails and
// IPs). Expiry is purely timestamp comparison: no timer fires when a
// lockout ends, the next read just stops seeing it.
//
// Active lockouts are kept in a read-through TTL cache so the check on
// every login request usually costs no database round trip.
type LockoutService struct {
	repo        LockoutRepository
	cache       *ttlcache.Cache[string, *models.Lockout]
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockoutRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *models.Lockout](),
	)
	go cache.Start()

	return &LockoutService{
		repo:        repo,
		cache:       cache,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// IsLocked reports whether the subject key is currently locked out and
// returns the lockout when it is. Infrastructure errors fail open: a
// database outage should not block legitimate logins, and the attempt
// is still subject to every other gate.
func (s *LockoutService) IsLocked(ctx context.Context, subjectKey string) (bool, *models.Lockout) {
	if item := s.cache.Get(subjectKey); item != nil {
		lockout := item.Value()
		if time.Now().Before(lockout.ExpiresAt) {
			return true, lockout
		}
		s.cache.Delete(subjectKey)
	}

	lockout, err := s.repo.GetActive(ctx, subjectKey)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to check lockout", slog.Any("error", err))
		}
		return false, nil
	}

	s.cache.Set(subjectKey, lockout, lockout.Remaining(time.Now()))
	return true, lockout
}

// Create places a lockout on the subject key for the given duration.
// Idempotent: a live lockout is returned unchanged, repeated triggers
// neither stack nor extend. An expired lockout the reaper has not
// swept yet does not block a fresh one.
func (s *LockoutService) Create(ctx context.Context, subjectKey, subjectType, reason string, duration time.Duration) (*models.Lockout, error) {
	expiresAt := time.Now().Add(duration)

	lockout, err := s.repo.Create(ctx, subjectKey, subjectType, reason, expiresAt)
	if err != nil {
		s.logger.Error("failed to create lockout",
			slog.String("subject_type", subjectType),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.cache.Set(subjectKey, lockout, lockout.Remaining(time.Now()))

	s.auditLogger.LogDefenseAction("lockout_created", subjectKey, "", map[string]string{
		"subject_type": subjectType,
		"reason":       reason,
		"expires_at":   lockout.ExpiresAt.UTC().Format(time.RFC3339),
	})

	return lockout, nil
}

// Stop shuts down the cache janitor
func (s *LockoutService) Stop() {
	s.cache.Stop()
}
