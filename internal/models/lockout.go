package models

import "time"

// Lockout subject types
const (
	LockoutSubjectEmail = "email"
	LockoutSubjectIP    = "ip"
)

// Lockout is a time-boxed block on further login attempts for a subject
// key (an email address or a source IP). At most one active lockout
// exists per subject key; expiry is decided lazily by timestamp
// comparison, the reaper only reclaims storage.
type Lockout struct {
	ID          string    `db:"id"`
	SubjectKey  string    `db:"subject_key"`
	SubjectType string    `db:"subject_type"`
	Reason      string    `db:"reason"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Remaining returns the time left until the lockout expires, zero if
// already expired.
func (l *Lockout) Remaining(now time.Time) time.Duration {
	if !l.Active || !now.Before(l.ExpiresAt) {
		return 0
	}
	return l.ExpiresAt.Sub(now)
}
