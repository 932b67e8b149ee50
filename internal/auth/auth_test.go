package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestUserEqual(t *testing.T) {
	assert.True(t, User{UID: "a"}.Equal(User{UID: "a"}))
	assert.False(t, User{UID: "a"}.Equal(User{UID: "b"}))
	assert.True(t, UnauthenticatedUser.Equal(User{}))
	assert.False(t, UnauthenticatedUser.IsAuthenticated())
	assert.Equal(t, "unauthenticated", UnauthenticatedUser.String())
}

func TestUserFromToken(t *testing.T) {
	user, err := UserFromToken(signedToken(t, jwt.MapClaims{"sub": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.UID)

	user, err = UserFromToken(signedToken(t, jwt.MapClaims{"uid": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", user.UID)

	user, err = UserFromToken("")
	require.NoError(t, err)
	assert.False(t, user.IsAuthenticated())

	_, err = UserFromToken("not-a-jwt")
	assert.Error(t, err)

	_, err = UserFromToken(signedToken(t, jwt.MapClaims{"aud": "x"}))
	assert.Error(t, err, "token without subject")
}

func TestTokenProviderChangeListener(t *testing.T) {
	p, err := NewTokenProvider(signedToken(t, jwt.MapClaims{"sub": "alice"}))
	require.NoError(t, err)

	var users []User
	p.SetChangeListener(func(u User) { users = append(users, u) })
	require.Len(t, users, 1, "listener fires immediately with the current user")
	assert.Equal(t, "alice", users[0].UID)

	// Refresh with the same subject does not notify.
	require.NoError(t, p.UpdateToken(signedToken(t, jwt.MapClaims{"sub": "alice", "exp": 9999999999})))
	assert.Len(t, users, 1)

	// A different subject does.
	require.NoError(t, p.UpdateToken(signedToken(t, jwt.MapClaims{"sub": "carol"})))
	require.Len(t, users, 2)
	assert.Equal(t, "carol", users[1].UID)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	user, err := UserFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "carol", user.UID)
}
