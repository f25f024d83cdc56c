package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("k", 2)
	id := uuid.New()
	token, err := svc.Generate(id, "hanako", "h@example.com", "admin")
	require.NoError(t, err)

	ident, err := svc.Identify(token)
	require.NoError(t, err)
	assert.Equal(t, id, ident.UserID)
	assert.Equal(t, "hanako", ident.Username)
	assert.Equal(t, "admin", ident.Role)
}

func TestJWTRejectsForeignAndExpired(t *testing.T) {
	svc := NewJWTService("k", 1)
	other := NewJWTService("other", 1)
	token, err := other.Generate(uuid.New(), "x", "x@example.com", "user")
	require.NoError(t, err)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err = svc.Generate(uuid.New(), "x", "x@example.com", "user")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword("secret1", hash))
	assert.False(t, CheckPassword("secret2", hash))
}
