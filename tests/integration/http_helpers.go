package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/captcha"
	"github.com/estateway/gatekeeper/internal/credentials"
	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/geo"
	"github.com/estateway/gatekeeper/internal/handlers"
	middlewareCustom "github.com/estateway/gatekeeper/internal/middleware"
	"github.com/estateway/gatekeeper/internal/routes"
	"github.com/estateway/gatekeeper/internal/services"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
)

const testTokenSecret = "integration-secret-32-chars-long"

// TestServer wraps httptest.Server with the full defense pipeline on a
// real database. The CAPTCHA verifier is the static dev one (any
// non-empty token passes) and backoff delays are near zero so tests
// exercise the gate ordering without sleeping.
type TestServer struct {
	Server     *httptest.Server
	DB         *database.DB
	TokenCodec *auth.TokenCodec

	lockoutService *services.LockoutService
	sessionService *services.SessionService
}

// NewTestServer initializes a complete HTTP server against the test database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger)

	attemptRepo, lockoutRepo, sessionRepo, alertRepo := InitializeRepositories(db)

	credentialVerifier := credentials.NewPostgresVerifier(db, logger)

	alertService := services.NewAlertService(alertRepo, nil, logger)

	lockoutService := services.NewLockoutService(lockoutRepo, logger, auditLogger)

	riskService := services.NewRiskService(
		attemptRepo,
		lockoutService,
		captcha.StaticVerifier{},
		auth.NewBackoff(auth.BackoffConfig{
			Base: 1 * time.Millisecond,
			Cap:  2 * time.Millisecond,
		}),
		alertService,
		credentialVerifier,
		services.RiskConfig{
			FailureWindow:      1 * time.Hour,
			CaptchaThreshold:   3,
			LockoutThreshold:   5,
			IPFailureThreshold: 20,
			LockoutDuration:    15 * time.Minute,
			AttemptRetention:   24 * time.Hour,
		},
		logger,
		auditLogger,
	)

	tokenCodec := auth.NewTokenCodec(testTokenSecret)

	sessionService := services.NewSessionService(
		sessionRepo,
		tokenCodec,
		alertService,
		services.SessionServiceConfig{
			TTL:           7 * 24 * time.Hour,
			TouchDebounce: 1 * time.Millisecond,
		},
		logger,
		auditLogger,
	)

	authService := services.NewAuthService(
		riskService,
		sessionService,
		alertService,
		credentialVerifier,
		geo.NoopResolver{},
		attemptRepo,
		logger,
	)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, sessionService, credentialVerifier, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService, alertService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, sessionHandler, tokenCodec, sessionService)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:         server,
		DB:             db,
		TokenCodec:     tokenCodec,
		lockoutService: lockoutService,
		sessionService: sessionService,
	}
}

// Close shuts down the test server and its cache janitors
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.sessionService != nil {
		ts.sessionService.Stop()
	}
	if ts.lockoutService != nil {
		ts.lockoutService.Stop()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an HTTP request carrying a session token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the machine-readable error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if code, ok := errResp["error"].(string); ok {
		return code, nil
	}
	return "", nil
}
