package repositories

import (
	"context"
	"time"

	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, device_fingerprint, device_info, ip_address, geolocation, active, created_at, last_activity_at, expires_at`

// SessionRepository handles the device_sessions table
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new active session. Any previously active session
// for the same (user, fingerprint) is deactivated in the same
// transaction: one session row per device is canonical at a time.
func (r *SessionRepository) Create(ctx context.Context, session *models.DeviceSession) (*models.DeviceSession, error) {
	var created *models.DeviceSession

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		supersede := `
			UPDATE device_sessions SET active = false
			WHERE user_id = $1 AND device_fingerprint = $2 AND active
		`
		if _, err := tx.Exec(ctx, supersede, session.UserID, session.DeviceFingerprint); err != nil {
			return database.MapPostgresError(err)
		}

		insert := `
			INSERT INTO device_sessions (id, user_id, device_fingerprint, device_info, ip_address, geolocation, active, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, $7)
			RETURNING ` + sessionColumns

		var err error
		created, err = scanSessionRow(tx.QueryRow(ctx, insert,
			uuid.New().String(),
			session.UserID,
			session.DeviceFingerprint,
			session.DeviceInfo,
			session.IPAddress,
			session.Geolocation,
			session.ExpiresAt,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID returns a session regardless of its active flag
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.DeviceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM device_sessions WHERE id = $1`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, sessionID))
}

// Touch updates the activity timestamp of an active session. It does
// not slide the expiry.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string) error {
	query := `
		UPDATE device_sessions SET last_activity_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND active
	`

	result, err := r.db.Pool.Exec(ctx, query, sessionID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// ListActive returns all active sessions for a user, most recently
// used first.
func (r *SessionRepository) ListActive(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM device_sessions
		WHERE user_id = $1 AND active
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]*models.DeviceSession, 0)
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// Deactivate revokes a single session
func (r *SessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	query := `UPDATE device_sessions SET active = false WHERE id = $1 AND active`

	result, err := r.db.Pool.Exec(ctx, query, sessionID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// DeactivateAllExcept revokes every active session of the user whose
// fingerprint differs from the one supplied. Single conditional bulk
// update: a session created concurrently is simply not part of the
// snapshot and survives, which is the documented semantics.
func (r *SessionRepository) DeactivateAllExcept(ctx context.Context, userID, fingerprint string) (int64, error) {
	query := `
		UPDATE device_sessions SET active = false
		WHERE user_id = $1 AND device_fingerprint <> $2 AND active
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, fingerprint)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// DeactivateExpired flips sessions past their TTL inactive. Validate
// already does this lazily per session; the reaper catches sessions
// nobody asked about.
func (r *SessionRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	query := `UPDATE device_sessions SET active = false WHERE active AND expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// DeleteInactiveOlderThan removes long-dead session rows
func (r *SessionRepository) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM device_sessions WHERE NOT active AND expires_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

func scanSessionRow(row rowScanner) (*models.DeviceSession, error) {
	var s models.DeviceSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceFingerprint, &s.DeviceInfo, &s.IPAddress,
		&s.Geolocation, &s.Active, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrSessionNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}
