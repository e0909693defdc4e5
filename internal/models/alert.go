package models

import "time"

// Security alert types
const (
	AlertTypeNewDevice        = "new_device"
	AlertTypeMultipleSessions = "multiple_sessions"
	AlertTypeSessionExpired   = "session_expired"
	AlertTypeAccountLocked    = "account_locked"
)

// SecurityAlert is a write-once record of a security-relevant event,
// read by the notification UI. UserID may be empty for alerts raised
// before the subject authenticated (e.g. an IP lockout).
type SecurityAlert struct {
	ID          string      `db:"id"`
	UserID      *string     `db:"user_id"`
	AlertType   string      `db:"alert_type"`
	DeviceInfo  DeviceInfo  `db:"device_info"`
	IPAddress   string      `db:"ip_address"`
	Geolocation Geolocation `db:"geolocation"`
	Message     string      `db:"message"`
	CreatedAt   time.Time   `db:"created_at"`
}
