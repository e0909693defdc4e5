package device

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// FingerprintLength is the length of the hex token returned by Resolve.
const FingerprintLength = 32

// Signals are the client environment values a fingerprint is derived
// from. Every field is optional; the browser client collects what it
// can and sends the rest empty.
type Signals struct {
	UserAgent        string `json:"user_agent,omitempty"`
	Language         string `json:"language,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	TimezoneOffset   string `json:"timezone_offset,omitempty"`
	// CanvasHash is the client-computed digest of a deterministic
	// canvas draw, a rendering-engine probe.
	CanvasHash string `json:"canvas_hash,omitempty"`
}

// Resolve derives a semi-stable fingerprint from the given signals.
//
// The result is stable across sessions on the same browser install but
// is NOT unique (identical hardware/software stacks collide) and NOT
// authenticated (the caller can send any signals it likes). It is a
// correlation key for session bookkeeping, never an authorization
// credential.
//
// Missing signals are skipped rather than failing: fewer signals means
// a lower-entropy but still deterministic token.
func Resolve(sig Signals) string {
	parts := make([]string, 0, 5)
	for _, v := range []string{
		sig.UserAgent,
		sig.Language,
		sig.ScreenResolution,
		sig.TimezoneOffset,
		sig.CanvasHash,
	} {
		if v != "" {
			parts = append(parts, v)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", hash)[:FingerprintLength]
}
