package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Defense  DefenseConfig
	Session  SessionConfig
	Alerts   AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// DefenseConfig holds the tunables for progressive brute-force
// mitigation. The per-IP threshold is deliberately separate from the
// per-account one: an IP shared by many users (office NAT) needs more
// headroom than a single account.
type DefenseConfig struct {
	// Rolling window over which failed attempts are counted.
	FailureWindow time.Duration
	// Failures for one email before a CAPTCHA is required.
	CaptchaThreshold int
	// Failures for one email before the account is locked out.
	LockoutThreshold int
	// Failures from one IP before the IP is locked out.
	IPFailureThreshold int
	// How long account and IP lockouts last.
	LockoutDuration time.Duration
	// Exponential backoff: base delay doubled per failure, capped.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// If true the server sleeps out the backoff delay before the
	// credential check; otherwise the delay is only returned to the
	// caller to honor.
	EnforceBackoff bool
	// How long pruned-by-reaper attempt rows are retained past the
	// failure window, for audit.
	AttemptRetention time.Duration
	// Reaper schedule, cron syntax.
	CleanupSchedule string
	// CAPTCHA siteverify endpoint and secret; empty secret disables
	// remote verification (dev mode accepts any non-empty token).
	CaptchaVerifyURL string
	CaptchaSecret    string
	// Geolocation lookup endpoint; empty disables lookups.
	GeoLookupURL string
}

// SessionConfig holds device-session lifecycle settings.
type SessionConfig struct {
	// Signing secret for session tokens.
	TokenSecret string
	// Fixed TTL from creation; sessions do not slide.
	TTL time.Duration
	// Server-side throttle for activity heartbeats.
	TouchDebounce time.Duration
}

// AlertConfig controls optional email delivery of security alerts.
type AlertConfig struct {
	EmailEnabled bool
	AWSRegion    string
	FromAddress  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	tokenSecret := getEnv("SESSION_TOKEN_SECRET", "")
	if tokenSecret == "" {
		return nil, fmt.Errorf("SESSION_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Defense: DefenseConfig{
			FailureWindow:      getEnvAsDuration("FAILURE_WINDOW", 1*time.Hour),
			CaptchaThreshold:   getEnvAsInt("CAPTCHA_THRESHOLD", 3),
			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			IPFailureThreshold: getEnvAsInt("IP_FAILURE_THRESHOLD", 20),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 60*time.Minute),
			BackoffBase:        getEnvAsDuration("BACKOFF_BASE", 1*time.Second),
			BackoffCap:         getEnvAsDuration("BACKOFF_CAP", 30*time.Second),
			EnforceBackoff:     getEnvAsBool("ENFORCE_BACKOFF", false),
			AttemptRetention:   getEnvAsDuration("ATTEMPT_RETENTION", 24*time.Hour),
			CleanupSchedule:    getEnv("CLEANUP_SCHEDULE", "@every 15m"),
			CaptchaVerifyURL:   getEnv("CAPTCHA_VERIFY_URL", ""),
			CaptchaSecret:      getEnv("CAPTCHA_SECRET", ""),
			GeoLookupURL:       getEnv("GEO_LOOKUP_URL", ""),
		},
		Session: SessionConfig{
			TokenSecret:   tokenSecret,
			TTL:           getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			TouchDebounce: getEnvAsDuration("SESSION_TOUCH_DEBOUNCE", 30*time.Second),
		},
		Alerts: AlertConfig{
			EmailEnabled: getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("ALERT_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateTokenSecret(tokenSecret, env); err != nil {
		return nil, err
	}

	if err := validateDefense(&cfg.Defense); err != nil {
		return nil, err
	}

	if cfg.Alerts.EmailEnabled && cfg.Alerts.FromAddress == "" {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS is required when ALERT_EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// validateTokenSecret enforces minimum strength for the session token secret
func validateTokenSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validateDefense rejects threshold combinations that would disable the
// defense ladder or invert its stages
func validateDefense(d *DefenseConfig) error {
	if d.CaptchaThreshold < 1 {
		return fmt.Errorf("CAPTCHA_THRESHOLD must be at least 1")
	}
	if d.LockoutThreshold <= d.CaptchaThreshold {
		return fmt.Errorf("LOCKOUT_THRESHOLD (%d) must be greater than CAPTCHA_THRESHOLD (%d)",
			d.LockoutThreshold, d.CaptchaThreshold)
	}
	if d.IPFailureThreshold < 1 {
		return fmt.Errorf("IP_FAILURE_THRESHOLD must be at least 1")
	}
	if d.BackoffBase <= 0 || d.BackoffCap < d.BackoffBase {
		return fmt.Errorf("BACKOFF_CAP must be at least BACKOFF_BASE")
	}
	if d.AttemptRetention < d.FailureWindow {
		return fmt.Errorf("ATTEMPT_RETENTION must be at least FAILURE_WINDOW")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
