package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/repositories"
)

func newTestAuthService() *AuthService {
	return NewAuthService(repositories.NewMemoryAccountRepository(), "test-secret", time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "dev@example.com", "correct-horse-battery"))

	resp, err := svc.Login(ctx, "dev@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	userID, err := svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, userID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "dev@example.com", "correct-horse-battery"))
	err := svc.Register(ctx, "dev@example.com", "another-password-123")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "dev@example.com", "correct-horse-battery"))

	_, err := svc.Login(ctx, "dev@example.com", "wrong-password-123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse-battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := newTestAuthService()
	_, err := svc.VerifyToken("not-a-jwt")
	assert.Error(t, err)

	other := NewAuthService(repositories.NewMemoryAccountRepository(), "different-secret", time.Hour)
	require.NoError(t, other.Register(context.Background(), "dev@example.com", "correct-horse-battery"))
	resp, err := other.Login(context.Background(), "dev@example.com", "correct-horse-battery")
	require.NoError(t, err)

	_, err = svc.VerifyToken(resp.Token)
	assert.Error(t, err, "token signed with another secret must fail")
}
