package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/estateway/gatekeeper/internal/services"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SessionManager defines the interface for session lifecycle operations
type SessionManager interface {
	Validate(ctx context.Context, token string) (*services.ValidationResult, error)
	Touch(ctx context.Context, token string) error
	Scan(ctx context.Context, userID, callerFingerprint string) (*services.ScanResult, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeAllOthers(ctx context.Context, userID, callerFingerprint string) (int64, error)
}

// AlertReader defines the interface for listing security alerts
type AlertReader interface {
	List(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error)
}

// SessionHandler handles session lifecycle and security alert requests
type SessionHandler struct {
	sessions SessionManager
	alerts   AlertReader
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionManager, alerts AlertReader) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		alerts:   alerts,
	}
}

// ValidateResponse is the body returned by session validation
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate reports whether the presented session token is still good.
// Public endpoint: clients poll it to detect remote revocation, so an
// invalid session is a 200 with valid=false, not an auth failure.
// @Summary Validate session token
// @Produce json
// @Success 200 {object} ValidateResponse
// @Router /auth/session/validate [post]
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "Missing bearer token")
		return
	}

	result, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ValidateResponse{Valid: result.Valid, Reason: result.Reason})
}

// Touch records activity on the caller's session
// @Summary Session heartbeat
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /sessions/touch [post]
func (h *SessionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "Missing bearer token")
		return
	}

	if err := h.sessions.Touch(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid session token")
		case errors.Is(err, models.ErrSessionNotFound):
			pkghttp.WriteNotFound(w, "Session not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List returns the caller's active sessions with duplicate detection
// @Summary List active sessions
// @Produce json
// @Success 200 {object} services.ScanResult
// @Failure 401 {object} ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.sessions.Scan(r.Context(), session.UserID, session.DeviceFingerprint)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Revoke deactivates one of the caller's sessions
// @Summary Revoke a session
// @Param id path string true "Session ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Session ID is required")
		return
	}

	if err := h.sessions.Revoke(r.Context(), session.UserID, sessionID); err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			pkghttp.WriteNotFound(w, "Session not found")
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "Session belongs to another user")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeOthersResponse reports how many sessions were revoked
type RevokeOthersResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

// RevokeOthers deactivates every session except the caller's device
// @Summary Revoke all other sessions
// @Produce json
// @Success 200 {object} RevokeOthersResponse
// @Failure 401 {object} ErrorResponse
// @Router /sessions/revoke-others [post]
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	revoked, err := h.sessions.RevokeAllOthers(r.Context(), session.UserID, session.DeviceFingerprint)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RevokeOthersResponse{RevokedCount: revoked})
}

// AlertsResponse wraps the caller's security alerts
type AlertsResponse struct {
	Alerts []*models.SecurityAlert `json:"alerts"`
}

// Alerts returns recent security alerts for the caller
// @Summary List security alerts
// @Produce json
// @Success 200 {object} AlertsResponse
// @Failure 401 {object} ErrorResponse
// @Router /alerts [get]
func (h *SessionHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	alerts, err := h.alerts.List(r.Context(), session.UserID, parseLimit(r, 50))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(AlertsResponse{Alerts: alerts})
}
