package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estateway/gatekeeper/internal/models"
)

func TestLockoutRepository_CreateIsIdempotent(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()
	expiresAt := time.Now().Add(30 * time.Minute)

	first, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "too many failures", expiresAt)
	require.NoError(t, err)
	assert.True(t, first.Active)

	// Second trigger hits the partial unique index and returns the
	// existing row untouched
	second, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "another trigger", expiresAt.Add(1*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.WithinDuration(t, first.ExpiresAt, second.ExpiresAt, time.Millisecond)
	assert.Equal(t, "too many failures", second.Reason)
}

func TestLockoutRepository_GetActiveIgnoresExpired(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "test", time.Now().Add(-1*time.Minute))
	require.NoError(t, err)

	_, err = repo.GetActive(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound, "a lockout past expiry reads as absent")
}

func TestLockoutRepository_CreateReclaimsExpiredRow(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()

	// An expired lockout the reaper has not swept yet still holds the
	// partial unique index slot for the subject
	stale, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "first", time.Now().Add(-1*time.Minute))
	require.NoError(t, err)

	// A fresh trigger must not have to wait for the sweep
	fresh, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "second", time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, fresh.ID)
	assert.Equal(t, "second", fresh.Reason)
	assert.True(t, fresh.ExpiresAt.After(time.Now()))

	active, err := repo.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)
}

func TestLockoutRepository_DeactivateExpiredFreesSubject(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()

	stale, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "first", time.Now().Add(-1*time.Minute))
	require.NoError(t, err)

	deactivated, err := repo.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deactivated)

	// Subject key is free again for a fresh lockout
	fresh, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "second", time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, fresh.ID)

	active, err := repo.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, active.ID)
}

func TestLockoutRepository_SubjectKeysAreIndependent(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()
	expiresAt := time.Now().Add(30 * time.Minute)

	_, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "account", expiresAt)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "203.0.113.10", models.LockoutSubjectIP, "ip sweep", expiresAt)
	require.NoError(t, err)

	email, err := repo.GetActive(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.LockoutSubjectEmail, email.SubjectType)

	ip, err := repo.GetActive(ctx, "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, models.LockoutSubjectIP, ip.SubjectType)
}

func TestLockoutRepository_DeleteInactiveOlderThan(t *testing.T) {
	resetTables(t)
	_, repo, _, _ := InitializeRepositories(testDB.DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice@example.com", models.LockoutSubjectEmail, "test", time.Now().Add(-1*time.Hour))
	require.NoError(t, err)

	_, err = repo.DeactivateExpired(ctx)
	require.NoError(t, err)

	deleted, err := repo.DeleteInactiveOlderThan(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
