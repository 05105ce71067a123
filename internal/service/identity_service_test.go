package service

import (
	"context"
	"testing"

	"qrlink/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityEnv(t *testing.T) (*IdentityService, *memoryUserRepo) {
	t.Helper()
	users := newMemoryUserRepo()
	svc := NewIdentityService(users, nil, BcryptPasswordHasher{Cost: 4}, stubTokenIssuer{})
	return svc, users
}

func addPasswordUser(t *testing.T, users *memoryUserRepo, email string, password string) *entity.User {
	t.Helper()
	hash, err := BcryptPasswordHasher{Cost: 4}.Hash(password)
	require.NoError(t, err)
	user := &entity.User{
		Email:        email,
		PasswordHash: &hash,
		Role:         entity.UserRoleUser,
		IsActive:     true,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestLoginIssuesAccessToken(t *testing.T) {
	svc, users := newIdentityEnv(t)
	user := addPasswordUser(t, users, "alice@example.com", "correct horse")

	result, err := svc.Login(context.Background(), "Alice@Example.com ", "correct horse", nil)
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID.String(), result.AccessToken)
	assert.Equal(t, int64(900), result.ExpiresIn)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, users := newIdentityEnv(t)
	addPasswordUser(t, users, "alice@example.com", "correct horse")

	_, err := svc.Login(context.Background(), "alice@example.com", "wrong", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newIdentityEnv(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginEmptyInput(t *testing.T) {
	svc, _ := newIdentityEnv(t)

	_, err := svc.Login(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
