package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
	"github.com/estateway/gatekeeper/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockoutService(t *testing.T, repo *mockLockoutRepo) *services.LockoutService {
	t.Helper()
	service := services.NewLockoutService(repo, newTestLogger(), newTestAuditLogger())
	t.Cleanup(service.Stop)
	return service
}

func TestLockoutServiceIsLocked_NoLockout(t *testing.T) {
	service := newLockoutService(t, newMockLockoutRepo())

	locked, lockout := service.IsLocked(context.Background(), "user@example.com")

	assert.False(t, locked)
	assert.Nil(t, lockout)
}

func TestLockoutServiceCreateThenIsLocked(t *testing.T) {
	service := newLockoutService(t, newMockLockoutRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, "user@example.com", models.LockoutSubjectEmail, "too many failures", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, created.Active)

	locked, lockout := service.IsLocked(ctx, "user@example.com")
	assert.True(t, locked)
	require.NotNil(t, lockout)
	assert.Equal(t, created.ID, lockout.ID)
	assert.Greater(t, lockout.Remaining(time.Now()), time.Duration(0))
}

func TestLockoutServiceCreate_Idempotent(t *testing.T) {
	service := newLockoutService(t, newMockLockoutRepo())
	ctx := context.Background()

	first, err := service.Create(ctx, "user@example.com", models.LockoutSubjectEmail, "first", 30*time.Minute)
	require.NoError(t, err)

	second, err := service.Create(ctx, "user@example.com", models.LockoutSubjectEmail, "second", 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "re-trigger must not extend the lockout")
}

func TestLockoutServiceIsLocked_ExpiryIsLazy(t *testing.T) {
	repo := newMockLockoutRepo()
	service := newLockoutService(t, repo)
	ctx := context.Background()

	// Expired the moment it is created
	_, err := service.Create(ctx, "user@example.com", models.LockoutSubjectEmail, "test", -1*time.Second)
	require.NoError(t, err)

	locked, _ := service.IsLocked(ctx, "user@example.com")
	assert.False(t, locked, "a lockout past its expiry reads as absent")
}

func TestLockoutServiceIsLocked_FailsOpenOnRepoError(t *testing.T) {
	repo := newMockLockoutRepo()
	repo.getErr = errors.New("connection refused")
	service := newLockoutService(t, repo)

	locked, lockout := service.IsLocked(context.Background(), "user@example.com")

	assert.False(t, locked)
	assert.Nil(t, lockout)
}

func TestLockoutServiceIsLocked_ServesFromCache(t *testing.T) {
	repo := newMockLockoutRepo()
	service := newLockoutService(t, repo)
	ctx := context.Background()

	_, err := service.Create(ctx, "user@example.com", models.LockoutSubjectEmail, "test", 30*time.Minute)
	require.NoError(t, err)

	// Break the repo: the answer must now come from the cache
	repo.getErr = errors.New("connection refused")

	locked, _ := service.IsLocked(ctx, "user@example.com")
	assert.True(t, locked)
}
