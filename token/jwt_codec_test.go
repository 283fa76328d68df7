package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/token"
)

const secretStr = "1234"

func testClaims() token.Claims {
	return token.Claims{
		UserID:         "user-1",
		Email:          "john.doe@example.com",
		OrganizationID: "org-1",
		Role:           "member",
		Permissions:    []string{"documents:read", "documents:write"},
		SessionID:      "session-1",
		TokenID:        "token-1",
		Family:         "family-1",
	}
}

func TestGenerateAndVerifyTokenPair(t *testing.T) {
	codec := token.NewJWTCodec(token.NewHMACSigner(secretStr), token.WithIssuer("com.testissuer"), token.WithAudience("api"))

	pair, err := codec.GenerateTokenPair(testClaims())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.True(t, pair.RefreshTokenExpiry.After(pair.AccessTokenExpiry))

	access, err := codec.VerifyToken(pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", access.UserID)
	require.Equal(t, "session-1", access.SessionID)
	require.Equal(t, []string{"documents:read", "documents:write"}, access.Permissions)

	refresh, err := codec.VerifyToken(pair.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	require.Equal(t, "token-1", refresh.TokenID)
	require.Equal(t, "family-1", refresh.Family)
	require.Equal(t, "org-1", refresh.OrganizationID)
}

func TestVerifyTokenKindMismatch(t *testing.T) {
	codec := token.NewJWTCodec(token.NewHMACSigner(secretStr))

	pair, err := codec.GenerateTokenPair(testClaims())
	require.NoError(t, err)

	_, err = codec.VerifyToken(pair.AccessToken, token.KindRefresh)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = codec.VerifyToken(pair.RefreshToken, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	codec := token.NewJWTCodec(token.NewHMACSigner(secretStr))
	other := token.NewJWTCodec(token.NewHMACSigner("different-secret"))

	pair, err := codec.GenerateTokenPair(testClaims())
	require.NoError(t, err)

	_, err = other.VerifyToken(pair.RefreshToken, token.KindRefresh)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestVerifyTokenExpired(t *testing.T) {
	now := time.Now()
	codec := token.NewJWTCodec(
		token.NewHMACSigner(secretStr),
		token.WithNowFunc(func() time.Time { return now }),
	)

	pair, err := codec.GenerateTokenPair(testClaims())
	require.NoError(t, err)

	now = now.Add(8 * 24 * time.Hour)

	_, err = codec.VerifyToken(pair.RefreshToken, token.KindRefresh)
	require.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestVerifyTokenGarbage(t *testing.T) {
	codec := token.NewJWTCodec(token.NewHMACSigner(secretStr))

	_, err := codec.VerifyToken("not-a-jwt", token.KindRefresh)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRotationPinsRefreshExpiry(t *testing.T) {
	codec := token.NewJWTCodec(token.NewHMACSigner(secretStr))

	claims := testClaims()
	claims.ExpiresAt = time.Now().Add(42 * time.Hour).Truncate(time.Second)

	pair, err := codec.GenerateTokenPair(claims)
	require.NoError(t, err)
	require.Equal(t, claims.ExpiresAt, pair.RefreshTokenExpiry)
}
