package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateJWT(6624)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ParseJWT(token)
	require.NoError(t, err)
	require.Equal(t, int64(6624), userID)
}

func TestJWT_RejectsGarbage(t *testing.T) {
	InitJWT("test-secret")

	_, err := ParseJWT("not.a.token")
	require.Error(t, err)

	_, err = ParseJWT("")
	require.Error(t, err)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	InitJWT("secret-one")
	token, err := GenerateJWT(42)
	require.NoError(t, err)

	InitJWT("secret-two")
	_, err = ParseJWT(token)
	require.Error(t, err)
}
