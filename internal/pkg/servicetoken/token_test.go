package servicetoken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	auth := New(Config{SecretKey: "secret", TTL: time.Minute})

	token, err := auth.Issue("checker")
	require.NoError(t, err)

	service, err := auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "checker", service)
}

func TestAuthenticator_WrongSecret(t *testing.T) {
	token, err := New(Config{SecretKey: "one"}).Issue("checker")
	require.NoError(t, err)

	_, err = New(Config{SecretKey: "two"}).ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Expired(t *testing.T) {
	auth := New(Config{SecretKey: "secret", TTL: time.Minute})
	issuedAt := time.Now().Add(-time.Hour)
	auth.now = func() time.Time { return issuedAt }

	token, err := auth.Issue("checker")
	require.NoError(t, err)

	auth.now = time.Now
	_, err = auth.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Garbage(t *testing.T) {
	_, err := New(Config{SecretKey: "secret"}).ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
