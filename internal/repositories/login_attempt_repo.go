package repositories

import (
	"context"
	"time"

	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// LoginAttemptRepository is the append-only ledger of login attempts.
// Rows are never updated; retention is handled by DeleteExpired from
// the background reaper.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Append records a login attempt
func (r *LoginAttemptRepository) Append(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, device_fingerprint, geolocation, success, failure_reason, risk_score, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.DeviceFingerprint,
		attempt.Geolocation,
		attempt.Success,
		attempt.FailureReason,
		attempt.RiskScore,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// CountFailuresSince returns the number of failed attempts for an
// email within the rolling window, counting only failures after the
// most recent successful login. Anchoring on the last success is what
// clears the CAPTCHA and backoff gates once a login goes through,
// without ever mutating ledger rows.
func (r *LoginAttemptRepository) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1
		  AND success = false
		  AND attempt_time >= $2
		  AND attempt_time > COALESCE(
		      (SELECT MAX(attempt_time) FROM login_attempts WHERE email = $1 AND success = true),
		      'epoch'::timestamptz)
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountFailuresForIP returns the number of failed attempts from an IP
// within the rolling window, across all accounts.
func (r *LoginAttemptRepository) CountFailuresForIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// LastFailureTime returns the timestamp of the most recent failed
// attempt for an email within the window, or nil when there is none.
// The backoff gate measures its wait from this point.
func (r *LoginAttemptRepository) LastFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&failureTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &failureTime, nil
}

// HasSeenDevice reports whether the email has ever logged in
// successfully from the given fingerprint. Used for new-device alerts.
func (r *LoginAttemptRepository) HasSeenDevice(ctx context.Context, email, fingerprint string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM login_attempts
			WHERE email = $1 AND device_fingerprint = $2 AND success = true
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, email, fingerprint).Scan(&exists)
	return exists, database.MapPostgresError(err)
}

// GetRecentForEmail returns the most recent attempts for an email,
// newest first. Audit/debug surface, not on the login hot path.
func (r *LoginAttemptRepository) GetRecentForEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, device_fingerprint, geolocation, attempt_time, success, failure_reason, risk_score, expires_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		attempt, err := scanLoginAttemptRow(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}

	return attempts, rows.Err()
}

func scanLoginAttemptRow(row rowScanner) (*models.LoginAttempt, error) {
	var a models.LoginAttempt
	err := row.Scan(
		&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.DeviceFingerprint,
		&a.Geolocation, &a.AttemptTime, &a.Success, &a.FailureReason,
		&a.RiskScore, &a.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

// DeleteExpired removes attempts past their audit retention
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
