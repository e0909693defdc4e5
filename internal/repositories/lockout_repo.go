package repositories

import (
	"context"
	"time"

	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository handles the lockouts table. A partial unique index
// on (subject_key) WHERE active guarantees at most one active lockout
// per subject; Create relies on it for idempotency.
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// Create inserts a lockout for the subject key. A live active lockout
// absorbs the insert and is returned unchanged: repeated triggers never
// stack or extend a lockout. An active row whose expiry has already
// passed is reclaimed in place, so a fresh lockout never has to wait
// for the reaper to free the subject key.
func (r *LockoutRepository) Create(ctx context.Context, subjectKey, subjectType, reason string, expiresAt time.Time) (*models.Lockout, error) {
	query := `
		INSERT INTO lockouts (id, subject_key, subject_type, reason, active, expires_at)
		VALUES ($1, $2, $3, $4, true, $5)
		ON CONFLICT (subject_key) WHERE active DO UPDATE
		SET id = EXCLUDED.id,
		    reason = EXCLUDED.reason,
		    expires_at = EXCLUDED.expires_at,
		    created_at = CURRENT_TIMESTAMP
		WHERE lockouts.expires_at <= CURRENT_TIMESTAMP
		RETURNING id, subject_key, subject_type, reason, active, created_at, expires_at
	`

	lockout, err := scanLockoutRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), subjectKey, subjectType, reason, expiresAt))
	if err == nil {
		return lockout, nil
	}
	if err != models.ErrNotFound {
		return nil, err
	}

	// Conflict with a live lockout: return the existing row
	return r.GetActive(ctx, subjectKey)
}

// GetActive returns the unexpired active lockout for a subject key,
// or ErrNotFound. Expiry is lazy: a row past expires_at is treated as
// absent here and reclaimed by the next Create for the subject or by
// the reaper, whichever comes first.
func (r *LockoutRepository) GetActive(ctx context.Context, subjectKey string) (*models.Lockout, error) {
	query := `
		SELECT id, subject_key, subject_type, reason, active, created_at, expires_at
		FROM lockouts
		WHERE subject_key = $1 AND active AND expires_at > CURRENT_TIMESTAMP
	`

	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, subjectKey))
}

func scanLockoutRow(row rowScanner) (*models.Lockout, error) {
	var l models.Lockout
	err := row.Scan(&l.ID, &l.SubjectKey, &l.SubjectType, &l.Reason, &l.Active, &l.CreatedAt, &l.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

// DeactivateExpired flips expired lockouts inactive so the partial
// unique index frees the subject key for a future lockout.
func (r *LockoutRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	query := `UPDATE lockouts SET active = false WHERE active AND expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// DeleteInactiveOlderThan removes long-inactive rows
func (r *LockoutRepository) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM lockouts WHERE NOT active AND expires_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
