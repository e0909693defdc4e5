package models

import "time"

// LoginAttempt represents a single login attempt in the system.
// Rows are append-only: once written they are never mutated, only
// pruned by the background reaper after the audit retention period.
type LoginAttempt struct {
	ID                string      `db:"id"`
	Email             string      `db:"email"`
	IPAddress         string      `db:"ip_address"`
	UserAgent         string      `db:"user_agent"`
	DeviceFingerprint string      `db:"device_fingerprint"`
	Geolocation       Geolocation `db:"geolocation"`
	AttemptTime       time.Time   `db:"attempt_time"`
	Success           bool        `db:"success"`
	FailureReason     *string     `db:"failure_reason"`
	RiskScore         int         `db:"risk_score"`
	ExpiresAt         time.Time   `db:"expires_at"`
}
