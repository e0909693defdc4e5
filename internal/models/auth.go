package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims carried by a session token. The token
// only identifies a session row; validity (active flag, expiry) is
// always decided against the stored session, so a token alone proves
// nothing once the session is revoked.
type SessionClaims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	jwt.RegisteredClaims
}
