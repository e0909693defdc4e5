package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/credentials"
	"github.com/estateway/gatekeeper/internal/device"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/estateway/gatekeeper/internal/services"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
)

// LoginService defines the interface for the secure login flow
type LoginService interface {
	SecureLogin(ctx context.Context, input services.LoginInput) (*services.LoginResult, *services.RiskDecision, error)
	RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// AuthHandler handles login, logout, and attempt history requests
type AuthHandler struct {
	service   LoginService
	sessions  SessionManager
	directory credentials.UserDirectory
	ipConfig  *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginService, sessions SessionManager, directory credentials.UserDirectory, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		sessions:  sessions,
		directory: directory,
		ipConfig:  ipConfig,
	}
}

// Request DTOs

// DeviceSignalsRequest carries the client-collected fingerprint signals
type DeviceSignalsRequest struct {
	UserAgent        string `json:"user_agent"`
	Language         string `json:"language"`
	ScreenResolution string `json:"screen_resolution"`
	TimezoneOffset   string `json:"timezone_offset"`
	CanvasHash       string `json:"canvas_hash"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email        string               `json:"email" validate:"required,email"`
	Password     string               `json:"password" validate:"required"`
	CaptchaToken string               `json:"captcha_token"`
	Device       DeviceSignalsRequest `json:"device"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	NewDevice bool      `json:"new_device"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
}

// Login handles a login request through the defense pipeline
// @Summary Secure login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	signals := device.Signals{
		UserAgent:        req.Device.UserAgent,
		Language:         req.Device.Language,
		ScreenResolution: req.Device.ScreenResolution,
		TimezoneOffset:   req.Device.TimezoneOffset,
		CanvasHash:       req.Device.CanvasHash,
	}
	if signals.UserAgent == "" {
		signals.UserAgent = r.Header.Get("User-Agent")
	}

	result, decision, err := h.service.SecureLogin(r.Context(), services.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		IPAddress:    ipAddress,
		Signals:      signals,
	})
	if err != nil {
		h.writeLoginError(w, decision, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     result.Token,
		SessionID: result.Session.ID,
		ExpiresAt: result.Session.ExpiresAt,
		NewDevice: result.NewDevice,
		UserID:    result.User.ID,
		Email:     result.User.Email,
		Name:      result.User.Name,
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, decision *services.RiskDecision, err error) {
	if decision != nil && decision.RetryAfter > 0 {
		pkghttp.SetRetryAfter(w, decision.RetryAfter)
	}

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		// Wrong password and unknown email look identical to the client
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrCaptchaRequired):
		pkghttp.WriteError(w, http.StatusForbidden, "captcha_required", decision.Reason)
	case errors.Is(err, models.ErrRetryLater):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "retry_later", decision.Reason)
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "account_locked", decision.Reason)
	case errors.Is(err, models.ErrIPLocked):
		pkghttp.WriteError(w, http.StatusTooManyRequests, "ip_locked", decision.Reason)
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout revokes the caller's own session
// @Summary Logout
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.sessions.Revoke(r.Context(), session.UserID, session.ID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttemptsResponse wraps the caller's recent login attempts
type AttemptsResponse struct {
	Attempts []AttemptView `json:"attempts"`
}

// AttemptView is the client-facing projection of a ledger row
type AttemptView struct {
	IPAddress   string             `json:"ip_address"`
	Geolocation models.Geolocation `json:"geolocation"`
	AttemptTime time.Time          `json:"attempt_time"`
	Success     bool               `json:"success"`
}

// RecentAttempts returns the caller's recent login attempts
// @Summary Recent login attempts
// @Produce json
// @Success 200 {object} AttemptsResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/attempts [get]
func (h *AuthHandler) RecentAttempts(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.directory.GetByID(r.Context(), session.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	attempts, err := h.service.RecentAttempts(r.Context(), user.Email, parseLimit(r, 20))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	views := make([]AttemptView, 0, len(attempts))
	for _, attempt := range attempts {
		views = append(views, AttemptView{
			IPAddress:   attempt.IPAddress,
			Geolocation: attempt.Geolocation,
			AttemptTime: attempt.AttemptTime,
			Success:     attempt.Success,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(AttemptsResponse{Attempts: views})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// bearerToken extracts the bearer token from the Authorization header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
