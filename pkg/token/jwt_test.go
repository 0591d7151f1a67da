package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_AccessToken(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	tok, err := m.GenerateToken(7, "alice", "USER")
	require.NoError(t, err)

	claims, err := m.VerifyTyped(tok, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTManager_RefreshNotAcceptedAsAccess(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	tok, err := m.GenerateRefreshToken(7, "alice", "USER")
	require.NoError(t, err)

	_, err = m.VerifyTyped(tok, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = m.VerifyTyped(tok, TypeRefresh)
	assert.NoError(t, err)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	tok, err := NewJWTManager("a", 1, 1).GenerateToken(1, "bob", "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("b", 1, 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("secret", 0, 0)
	tok, err := m.GenerateToken(1, "bob", "USER")
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
