package models

import (
	"database/sql/driver"
	"encoding/json"
)

// DeviceInfo describes the client environment a session was created
// from. All fields are optional; absent signals are stored as empty
// strings.
type DeviceInfo struct {
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Language  string `json:"language,omitempty"`
}

// Scan implements sql.Scanner for JSONB
func (di *DeviceInfo) Scan(value interface{}) error {
	if value == nil {
		*di = DeviceInfo{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	return json.Unmarshal(bytes, di)
}

// Value implements driver.Valuer for JSONB
func (di DeviceInfo) Value() (driver.Value, error) {
	return json.Marshal(di)
}

// Geolocation is a best-effort annotation of where a request came
// from. It is informational only and never used as a security control.
type Geolocation struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Unknown reports whether the lookup produced no usable location.
func (g Geolocation) Unknown() bool {
	return g.Country == "" && g.Region == "" && g.City == ""
}

// Scan implements sql.Scanner for JSONB
func (g *Geolocation) Scan(value interface{}) error {
	if value == nil {
		*g = Geolocation{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	return json.Unmarshal(bytes, g)
}

// Value implements driver.Valuer for JSONB
func (g Geolocation) Value() (driver.Value, error) {
	return json.Marshal(g)
}
