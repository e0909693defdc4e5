package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a CAPTCHA challenge response supplied by a client
// that has crossed the failure threshold.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// SiteverifyVerifier validates tokens against a Turnstile/hCaptcha
// style siteverify endpoint (form POST with secret + response).
type SiteverifyVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

// NewSiteverifyVerifier creates a verifier against the given endpoint.
func NewSiteverifyVerifier(endpoint, secret string, logger *slog.Logger) *SiteverifyVerifier {
	return &SiteverifyVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the token to the siteverify endpoint. A transport
// failure is returned as an error so the caller can decide whether to
// fail open or closed; an explicit rejection is (false, nil).
func (v *SiteverifyVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}

	if !body.Success {
		v.logger.Info("captcha rejected", slog.Any("error_codes", body.ErrorCodes))
	}

	return body.Success, nil
}

// StaticVerifier accepts any non-empty token. Development only; wired
// when no CAPTCHA secret is configured.
type StaticVerifier struct{}

func (StaticVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return token != "", nil
}
