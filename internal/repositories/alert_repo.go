package repositories

import (
	"context"
	"time"

	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AlertRepository handles the security_alerts table. Alerts are
// write-once: created by the defense pipeline, read by the
// notification UI, pruned by the reaper.
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a security alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	query := `
		INSERT INTO security_alerts (id, user_id, alert_type, device_info, ip_address, geolocation, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, user_id, alert_type, device_info, ip_address, geolocation, message, created_at
	`

	return scanAlertRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(),
		alert.UserID,
		alert.AlertType,
		alert.DeviceInfo,
		alert.IPAddress,
		alert.Geolocation,
		alert.Message,
	))
}

// ListByUser returns the most recent alerts for a user, newest first
func (r *AlertRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT id, user_id, alert_type, device_info, ip_address, geolocation, message, created_at
		FROM security_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// DeleteOlderThan prunes old alerts
func (r *AlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_alerts WHERE created_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

func scanAlertRow(row rowScanner) (*models.SecurityAlert, error) {
	var a models.SecurityAlert
	err := row.Scan(
		&a.ID, &a.UserID, &a.AlertType, &a.DeviceInfo, &a.IPAddress,
		&a.Geolocation, &a.Message, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}
