package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login defense errors
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrIPLocked        = errors.New("too many attempts from this address")
	ErrCaptchaRequired = errors.New("captcha verification required")
	ErrCaptchaInvalid  = errors.New("captcha verification failed")
	ErrRetryLater      = errors.New("retry after backoff delay")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
	ErrSessionRevoked  = errors.New("session has been revoked")
)
