package token

import (
	"errors"
	"time"
)

// Kind distinguishes the two halves of a token pair. Verification always
// names the kind it expects so an access token can never be replayed as a
// refresh token or vice versa.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the identity payload embedded in both tokens of a pair. The
// session core fills it at issuance and reads it back on rotation; it never
// inspects the raw token string itself.
type Claims struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	Permissions    []string
	SessionID      string
	TokenID        string
	Family         string
	Kind           Kind
	ExpiresAt      time.Time
}

// TokenPair is what a successful login or rotation hands back to the client.
type TokenPair struct {
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
}

// Codec creates and verifies token pairs. The session core depends only on
// this interface; the JWT implementation below is one possible codec.
type Codec interface {
	GenerateTokenPair(claims Claims) (*TokenPair, error)
	VerifyToken(rawToken string, kind Kind) (*Claims, error)
}
