package auth

import (
	"fmt"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec signs and parses session tokens. A token is a pointer to
// a session row, nothing more: parsing a token proves the client holds
// a value we issued, but whether the session is still good is always
// decided against the store.
type TokenCodec struct {
	secret string
}

// NewTokenCodec creates a new TokenCodec
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: secret}
}

// Issue creates a signed token for the session. The token expiry
// mirrors the session's fixed TTL so a stale token fails fast without
// a store lookup.
func (tc *TokenCodec) Issue(session *models.DeviceSession) (string, error) {
	claims := &models.SessionClaims{
		SessionID: session.ID,
		UserID:    session.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tc.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// Parse validates the signature and expiry and returns the claims
func (tc *TokenCodec) Parse(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(tc.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	if !token.Valid || claims.SessionID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
