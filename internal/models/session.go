package models

import "time"

// DeviceSession binds a user, a device fingerprint, and a validity
// window. The fingerprint is a client-asserted correlation key, not a
// credential: two identical hardware/software stacks can collide and a
// caller can present any value. It is used for session bookkeeping
// ("this device", "other devices"), never for authorization.
//
// Sessions have a fixed TTL set at creation; LastActivityAt is a
// bookkeeping timestamp and does not slide the expiry.
type DeviceSession struct {
	ID                string      `db:"id"`
	UserID            string      `db:"user_id"`
	DeviceFingerprint string      `db:"device_fingerprint"`
	DeviceInfo        DeviceInfo  `db:"device_info"`
	IPAddress         string      `db:"ip_address"`
	Geolocation       Geolocation `db:"geolocation"`
	Active            bool        `db:"active"`
	CreatedAt         time.Time   `db:"created_at"`
	LastActivityAt    time.Time   `db:"last_activity_at"`
	ExpiresAt         time.Time   `db:"expires_at"`
}

// Expired reports whether the session's validity window has passed.
func (s *DeviceSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is a DeviceSession decorated for presentation to the
// owning user. Current marks the session whose fingerprint matches the
// one the caller presented.
type SessionView struct {
	ID             string      `json:"id"`
	DeviceInfo     DeviceInfo  `json:"device_info"`
	IPAddress      string      `json:"ip_address"`
	Geolocation    Geolocation `json:"geolocation"`
	Current        bool        `json:"current"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}
