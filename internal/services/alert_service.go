package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
)

// AlertRepository defines the interface for security alert persistence
type AlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error)
}

// AlertNotifier delivers an alert out-of-band (email). Delivery is
// best effort and never affects whether the alert row exists.
type AlertNotifier interface {
	Notify(ctx context.Context, alert *models.SecurityAlert)
}

// AlertService records security alerts for the notification UI and
// fans them out to the optional notifier. Alert creation is a side
// effect of the defense pipeline: it must never fail a login or a
// session operation, so Emit swallows persistence errors after
// logging them.
type AlertService struct {
	repo     AlertRepository
	notifier AlertNotifier
	logger   *slog.Logger
}

// NewAlertService creates a new AlertService. notifier may be nil.
func NewAlertService(repo AlertRepository, notifier AlertNotifier, logger *slog.Logger) *AlertService {
	return &AlertService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Emit records an alert, degrading silently on failure
func (s *AlertService) Emit(ctx context.Context, alert *models.SecurityAlert) {
	created, err := s.repo.Create(ctx, alert)
	if err != nil {
		s.logger.Error("failed to record security alert",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return
	}

	if s.notifier != nil {
		// Fire and forget: notification latency must not ride on the
		// request path.
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.notifier.Notify(notifyCtx, created)
		}()
	}
}

// List returns recent alerts for a user
func (s *AlertService) List(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	alerts, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		s.logger.Error("failed to list security alerts", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return alerts, nil
}
