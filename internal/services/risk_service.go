package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/captcha"
	"github.com/estateway/gatekeeper/internal/models"
	pkglogger "github.com/estateway/gatekeeper/pkg/logger"
)

// LedgerRepository defines the interface for the login attempt ledger
type LedgerRepository interface {
	Append(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
	CountFailuresForIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
	LastFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error)
	HasSeenDevice(ctx context.Context, email, fingerprint string) (bool, error)
}

// LockoutManager defines the slice of LockoutService the evaluator uses
type LockoutManager interface {
	IsLocked(ctx context.Context, subjectKey string) (bool, *models.Lockout)
	Create(ctx context.Context, subjectKey, subjectType, reason string, duration time.Duration) (*models.Lockout, error)
}

// AccountDirectory resolves account records for alert addressing
type AccountDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Outcome is the gate decision for a login request
type Outcome string

const (
	OutcomeProceed         Outcome = "proceed"
	OutcomeDelayed         Outcome = "delayed"
	OutcomeCaptchaRequired Outcome = "captcha_required"
	OutcomeBlockedAccount  Outcome = "blocked_account"
	OutcomeBlockedIP       Outcome = "blocked_ip"
)

// RiskDecision is the result of evaluating a login request against
// the defense ladder, before any credential check.
type RiskDecision struct {
	Outcome   Outcome
	FailCount int
	// Delay is the full mandatory wait for the current failure count.
	Delay time.Duration
	// RetryAfter is how long until the gate would pass: the remaining
	// lockout for blocks, the remaining wait for delays.
	RetryAfter time.Duration
	// Reason is a user-facing explanation for non-proceed outcomes.
	Reason string
}

// RiskConfig holds the evaluator's thresholds
type RiskConfig struct {
	FailureWindow      time.Duration
	CaptchaThreshold   int
	LockoutThreshold   int
	IPFailureThreshold int
	LockoutDuration    time.Duration
	EnforceBackoff     bool
	// AttemptRetention is how long ledger rows are kept; it also bounds
	// how far back the device-history check can see.
	AttemptRetention time.Duration
}

// RiskService runs every login request through the defense ladder:
// IP lockout, account lockout, CAPTCHA gate, progressive delay. All
// gates re-derive their state from the ledger on every call; there are
// no per-request timers, so a client may retry whenever it likes and
// gets a fresh answer.
type RiskService struct {
	ledger      LedgerRepository
	lockouts    LockoutManager
	captcha     captcha.Verifier
	backoff     *auth.Backoff
	alerts      *AlertService
	directory   AccountDirectory
	config      RiskConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewRiskService creates a new RiskService
func NewRiskService(
	ledger LedgerRepository,
	lockouts LockoutManager,
	captchaVerifier captcha.Verifier,
	backoff *auth.Backoff,
	alerts *AlertService,
	directory AccountDirectory,
	config RiskConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *RiskService {
	return &RiskService{
		ledger:      ledger,
		lockouts:    lockouts,
		captcha:     captchaVerifier,
		backoff:     backoff,
		alerts:      alerts,
		directory:   directory,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Evaluate decides whether the credential check may run. Ledger read
// failures fail open: availability over a stricter gate, the attempt
// still gets recorded and counted next time.
func (s *RiskService) Evaluate(ctx context.Context, email, ipAddress, captchaToken string) *RiskDecision {
	now := time.Now()

	// 1. IP lockout blocks every account from that address
	if locked, lockout := s.lockouts.IsLocked(ctx, ipAddress); locked {
		remaining := lockout.Remaining(now)
		s.auditLogger.LogDefenseAction("attempt_blocked_ip", ipAddress, ipAddress, nil)
		return &RiskDecision{
			Outcome:    OutcomeBlockedIP,
			RetryAfter: remaining,
			Reason:     blockedReason("your network", remaining),
		}
	}

	// 2. Account lockout
	if locked, lockout := s.lockouts.IsLocked(ctx, email); locked {
		remaining := lockout.Remaining(now)
		s.auditLogger.LogDefenseAction("attempt_blocked_account", email, ipAddress, nil)
		return &RiskDecision{
			Outcome:    OutcomeBlockedAccount,
			RetryAfter: remaining,
			Reason:     blockedReason("this account", remaining),
		}
	}

	// 3. Failure count over the rolling window, anchored at call time
	since := now.Add(-s.config.FailureWindow)
	failCount, err := s.ledger.CountFailuresSince(ctx, email, since)
	if err != nil {
		s.logger.Error("failed to count login failures", slog.Any("error", err))
		return &RiskDecision{Outcome: OutcomeProceed}
	}

	if failCount >= s.config.CaptchaThreshold {
		return s.evaluateCaptcha(ctx, email, ipAddress, captchaToken, failCount)
	}

	if failCount > 0 {
		return s.evaluateDelay(ctx, email, ipAddress, since, failCount)
	}

	return &RiskDecision{Outcome: OutcomeProceed}
}

func (s *RiskService) evaluateCaptcha(ctx context.Context, email, ipAddress, captchaToken string, failCount int) *RiskDecision {
	required := &RiskDecision{
		Outcome:   OutcomeCaptchaRequired,
		FailCount: failCount,
		Reason:    "Please complete the security check to continue.",
	}

	if captchaToken == "" {
		s.auditLogger.LogDefenseAction("captcha_required", email, ipAddress, map[string]string{
			"fail_count": strconv.Itoa(failCount),
		})
		return required
	}

	ok, err := s.captcha.Verify(ctx, captchaToken, ipAddress)
	if err != nil {
		// Verifier outage: fail open, the remaining gates still apply
		s.logger.Error("captcha verification unavailable", slog.Any("error", err))
		return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount}
	}
	if !ok {
		s.auditLogger.LogDefenseAction("captcha_rejected", email, ipAddress, nil)
		required.Reason = "Security check failed. Please try again."
		return required
	}

	return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount}
}

func (s *RiskService) evaluateDelay(ctx context.Context, email, ipAddress string, since time.Time, failCount int) *RiskDecision {
	delay := s.backoff.DelayFor(failCount)

	lastFailure, err := s.ledger.LastFailureTime(ctx, email, since)
	if err != nil {
		s.logger.Error("failed to read last failure time", slog.Any("error", err))
		return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount}
	}
	if lastFailure == nil {
		return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount}
	}

	elapsed := time.Since(*lastFailure)
	if elapsed >= delay {
		return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount, Delay: delay}
	}

	remaining := delay - elapsed

	if s.config.EnforceBackoff {
		// Server-side enforcement: sleep out the rest of the window,
		// then let the credential check run.
		if err := waitFor(ctx, remaining); err != nil {
			return &RiskDecision{
				Outcome:    OutcomeDelayed,
				FailCount:  failCount,
				Delay:      delay,
				RetryAfter: remaining,
				Reason:     delayedReason(remaining),
			}
		}
		return &RiskDecision{Outcome: OutcomeProceed, FailCount: failCount, Delay: delay}
	}

	s.auditLogger.LogDefenseAction("backoff_applied", email, ipAddress, map[string]string{
		"fail_count": strconv.Itoa(failCount),
		"delay_ms":   strconv.FormatInt(delay.Milliseconds(), 10),
	})

	return &RiskDecision{
		Outcome:    OutcomeDelayed,
		FailCount:  failCount,
		Delay:      delay,
		RetryAfter: remaining,
		Reason:     delayedReason(remaining),
	}
}

// RecordOutcome appends the attempt to the ledger and applies the
// post-check consequences: account lockout at the threshold, IP
// lockout at its own threshold. Ledger write failures are logged and
// swallowed, the login result stands regardless.
func (s *RiskService) RecordOutcome(ctx context.Context, attempt *models.LoginAttempt) {
	now := time.Now()
	since := now.Add(-s.config.FailureWindow)

	retention := s.config.AttemptRetention
	if retention <= 0 {
		retention = 2 * s.config.FailureWindow
	}

	attempt.RiskScore = s.scoreAttempt(ctx, attempt, since)
	attempt.ExpiresAt = now.Add(retention)

	if err := s.ledger.Append(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
		return
	}

	s.auditLogger.LogLoginAttempt(pkglogger.AuditEvent{
		EventType:   "login_attempt",
		Email:       attempt.Email,
		IPAddress:   attempt.IPAddress,
		Fingerprint: attempt.DeviceFingerprint,
		Success:     attempt.Success,
	})

	if attempt.Success {
		return
	}

	s.maybeLockAccount(ctx, attempt, since)
	s.maybeLockIP(ctx, attempt, since)
}

func (s *RiskService) maybeLockAccount(ctx context.Context, attempt *models.LoginAttempt, since time.Time) {
	failCount, err := s.ledger.CountFailuresSince(ctx, attempt.Email, since)
	if err != nil {
		s.logger.Error("failed to recount login failures", slog.Any("error", err))
		return
	}
	if failCount < s.config.LockoutThreshold {
		return
	}

	reason := fmt.Sprintf("%d failed login attempts within %s", failCount, s.config.FailureWindow)
	if _, err := s.lockouts.Create(ctx, attempt.Email, models.LockoutSubjectEmail, reason, s.config.LockoutDuration); err != nil {
		return
	}

	alert := &models.SecurityAlert{
		AlertType:   models.AlertTypeAccountLocked,
		IPAddress:   attempt.IPAddress,
		Geolocation: attempt.Geolocation,
		DeviceInfo:  models.DeviceInfo{UserAgent: attempt.UserAgent},
		Message:     fmt.Sprintf("Account locked for %s after repeated failed login attempts.", s.config.LockoutDuration),
	}

	// Failures against unknown emails still lock the key; those alerts
	// have no account to address and stay unassigned.
	if user, err := s.directory.GetByEmail(ctx, attempt.Email); err == nil {
		alert.UserID = &user.ID
	}

	s.alerts.Emit(ctx, alert)
}

func (s *RiskService) maybeLockIP(ctx context.Context, attempt *models.LoginAttempt, since time.Time) {
	ipFailures, err := s.ledger.CountFailuresForIP(ctx, attempt.IPAddress, since)
	if err != nil {
		s.logger.Error("failed to count IP failures", slog.Any("error", err))
		return
	}
	if ipFailures < s.config.IPFailureThreshold {
		return
	}

	reason := fmt.Sprintf("%d failed login attempts within %s", ipFailures, s.config.FailureWindow)
	_, _ = s.lockouts.Create(ctx, attempt.IPAddress, models.LockoutSubjectIP, reason, s.config.LockoutDuration)
}

// scoreAttempt derives a coarse 0-100 risk annotation for the ledger
// row. Informational only, nothing gates on it.
func (s *RiskService) scoreAttempt(ctx context.Context, attempt *models.LoginAttempt, since time.Time) int {
	score := 0

	if failCount, err := s.ledger.CountFailuresSince(ctx, attempt.Email, since); err == nil {
		score += failCount * 15
	}
	if seen, err := s.ledger.HasSeenDevice(ctx, attempt.Email, attempt.DeviceFingerprint); err == nil && !seen {
		score += 20
	}
	if attempt.Geolocation.Unknown() {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// IsNewDevice reports whether the email has never succeeded from this
// fingerprint. Checked before the success is appended so the current
// attempt does not mask itself.
func (s *RiskService) IsNewDevice(ctx context.Context, email, fingerprint string) bool {
	seen, err := s.ledger.HasSeenDevice(ctx, email, fingerprint)
	if err != nil {
		s.logger.Error("failed to check device history", slog.Any("error", err))
		return false
	}
	return !seen
}

func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func blockedReason(subject string, remaining time.Duration) string {
	minutes := int(remaining.Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Too many failed login attempts for %s. Please try again in %d minute(s).", subject, minutes)
}

func delayedReason(remaining time.Duration) string {
	seconds := int(remaining.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("Please wait %d second(s) before trying again.", seconds)
}
