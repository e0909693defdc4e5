package credentials

import (
	"context"
	"errors"
	"log/slog"

	"github.com/estateway/gatekeeper/internal/database"
	"github.com/estateway/gatekeeper/internal/models"
	pkgauth "github.com/estateway/gatekeeper/pkg/auth"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Verifier is the credential-check port. Gatekeeper never stores or
// judges passwords itself; it hands the check to whatever credential
// store the deployment wires in and only records the boolean outcome.
type Verifier interface {
	// Verify returns the user on success and models.ErrUnauthorized
	// when the credentials do not match. Any other error is an
	// infrastructure failure.
	Verify(ctx context.Context, email, password string) (*models.User, error)
}

// UserDirectory resolves users for alert addressing.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// PostgresVerifier verifies against the marketplace users table using
// bcrypt. It is the default adapter; deployments fronted by an
// external identity provider replace it.
type PostgresVerifier struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresVerifier creates a PostgresVerifier
func NewPostgresVerifier(db *database.DB, logger *slog.Logger) *PostgresVerifier {
	return &PostgresVerifier{pool: db.Pool, logger: logger}
}

// GetByEmail loads a user by email, for alert addressing.
func (v *PostgresVerifier) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, created_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	err := v.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// Verify checks the password against the stored bcrypt hash. An
// unknown email and a wrong password both map to ErrUnauthorized so
// callers cannot distinguish them.
func (v *PostgresVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		v.logger.Error("failed to load user for credential check", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrUnauthorized
	}

	return user, nil
}

// GetByID loads a user by ID, for alert addressing.
func (v *PostgresVerifier) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, created_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := v.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}
