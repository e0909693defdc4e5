package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/models"
	"github.com/estateway/gatekeeper/internal/services"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext injects an authenticated session into the request
// context, as the session middleware would.
func WithSessionContext(req *http.Request, userID, sessionID, fingerprint string) *http.Request {
	session := &models.DeviceSession{
		ID:                sessionID,
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		Active:            true,
	}
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginService for testing
type MockLoginService struct {
	SecureLoginFunc    func(ctx context.Context, input services.LoginInput) (*services.LoginResult, *services.RiskDecision, error)
	RecentAttemptsFunc func(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

func (m *MockLoginService) SecureLogin(ctx context.Context, input services.LoginInput) (*services.LoginResult, *services.RiskDecision, error) {
	if m.SecureLoginFunc == nil {
		return nil, nil, models.ErrUnauthorized
	}
	return m.SecureLoginFunc(ctx, input)
}

func (m *MockLoginService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	if m.RecentAttemptsFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.RecentAttemptsFunc(ctx, email, limit)
}

// MockSessionManager implements SessionManager for testing
type MockSessionManager struct {
	ValidateFunc        func(ctx context.Context, token string) (*services.ValidationResult, error)
	TouchFunc           func(ctx context.Context, token string) error
	ScanFunc            func(ctx context.Context, userID, callerFingerprint string) (*services.ScanResult, error)
	RevokeFunc          func(ctx context.Context, userID, sessionID string) error
	RevokeAllOthersFunc func(ctx context.Context, userID, callerFingerprint string) (int64, error)
}

func (m *MockSessionManager) Validate(ctx context.Context, token string) (*services.ValidationResult, error) {
	if m.ValidateFunc == nil {
		return &services.ValidationResult{Valid: false, Reason: "session not found"}, nil
	}
	return m.ValidateFunc(ctx, token)
}

func (m *MockSessionManager) Touch(ctx context.Context, token string) error {
	if m.TouchFunc == nil {
		return nil
	}
	return m.TouchFunc(ctx, token)
}

func (m *MockSessionManager) Scan(ctx context.Context, userID, callerFingerprint string) (*services.ScanResult, error) {
	if m.ScanFunc == nil {
		return &services.ScanResult{Sessions: []models.SessionView{}}, nil
	}
	return m.ScanFunc(ctx, userID, callerFingerprint)
}

func (m *MockSessionManager) Revoke(ctx context.Context, userID, sessionID string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, userID, sessionID)
}

func (m *MockSessionManager) RevokeAllOthers(ctx context.Context, userID, callerFingerprint string) (int64, error) {
	if m.RevokeAllOthersFunc == nil {
		return 0, nil
	}
	return m.RevokeAllOthersFunc(ctx, userID, callerFingerprint)
}

// MockAlertReader implements AlertReader for testing
type MockAlertReader struct {
	ListFunc func(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error)
}

func (m *MockAlertReader) List(ctx context.Context, userID string, limit int) ([]*models.SecurityAlert, error) {
	if m.ListFunc == nil {
		return []*models.SecurityAlert{}, nil
	}
	return m.ListFunc(ctx, userID, limit)
}

// MockUserDirectory implements credentials.UserDirectory for testing
type MockUserDirectory struct {
	GetByIDFunc    func(ctx context.Context, userID string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

func (m *MockUserDirectory) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, userID)
}

func (m *MockUserDirectory) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByEmailFunc(ctx, email)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
