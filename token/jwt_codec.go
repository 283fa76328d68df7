package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/internal/utils"
)

// JWTCodec implements Codec by signing both halves of the pair as JWTs with
// a shared Signer. The refresh token carries the ledger token id as its jti
// so the rotation engine can look the record up after verification.
type JWTCodec struct {
	signer             Signer
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

var _ Codec = (*JWTCodec)(nil)

type JWTCodecOption func(*JWTCodec)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) JWTCodecOption {
	return func(c *JWTCodec) {
		c.accessTokenExpiry = accessTokenExpiry
		c.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) JWTCodecOption {
	return func(c *JWTCodec) {
		c.nowFunc = now
	}
}

func WithIssuer(issuer string) JWTCodecOption {
	return func(c *JWTCodec) {
		c.issuer = issuer
	}
}

func WithAudience(audience string) JWTCodecOption {
	return func(c *JWTCodec) {
		c.audience = audience
	}
}

func NewJWTCodec(signer Signer, options ...JWTCodecOption) *JWTCodec {
	c := &JWTCodec{
		signer: signer,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.accessTokenExpiry == 0 {
		c.accessTokenExpiry = 15 * time.Minute
	}
	if c.refreshTokenExpiry == 0 {
		c.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c
}

// GenerateTokenPair mints an access/refresh pair from the supplied claims.
// Claims.ExpiresAt, when set, pins the refresh token expiry (used on
// rotation so the new head inherits the remaining family lifetime).
func (c *JWTCodec) GenerateTokenPair(claims Claims) (*TokenPair, error) {
	now := c.nowFunc()

	accessExpiry := now.Add(c.accessTokenExpiry)
	refreshExpiry := claims.ExpiresAt
	if refreshExpiry.IsZero() {
		refreshExpiry = now.Add(c.refreshTokenExpiry)
	}

	accessToken, err := c.signer.Sign(c.mapClaims(claims, KindAccess, now, accessExpiry))
	if err != nil {
		return nil, errors.Wrap(err, "[JWTCodec.GenerateTokenPair] sign access token")
	}

	refreshToken, err := c.signer.Sign(c.mapClaims(claims, KindRefresh, now, refreshExpiry))
	if err != nil {
		return nil, errors.Wrap(err, "[JWTCodec.GenerateTokenPair] sign refresh token")
	}

	return &TokenPair{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}

// VerifyToken parses and validates rawToken, requiring it to be of the given
// kind. Expired tokens return ErrTokenExpired; anything else that fails
// signature or shape checks returns ErrInvalidToken.
func (c *JWTCodec) VerifyToken(rawToken string, kind Kind) (*Claims, error) {
	parsed, err := jwt.NewParser(jwt.WithTimeFunc(c.nowFunc)).Parse(rawToken, c.signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if tokenKind, _ := mapClaims["kind"].(string); tokenKind != string(kind) {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Kind: kind}
	claims.UserID, _ = mapClaims["sub"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	claims.OrganizationID, _ = mapClaims["org"].(string)
	claims.Role, _ = mapClaims["role"].(string)
	claims.SessionID, _ = mapClaims["sid"].(string)
	claims.TokenID, _ = mapClaims["jti"].(string)
	claims.Family, _ = mapClaims["family"].(string)

	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if rawPermissions, ok := mapClaims["permissions"].([]any); ok {
		claims.Permissions = utils.ToStringSlice(rawPermissions)
	}

	return claims, nil
}

func (c *JWTCodec) mapClaims(claims Claims, kind Kind, now, expiry time.Time) jwt.MapClaims {
	mc := jwt.MapClaims{
		"sub":    claims.UserID,
		"email":  claims.Email,
		"role":   claims.Role,
		"sid":    claims.SessionID,
		"jti":    claims.TokenID,
		"family": claims.Family,
		"kind":   string(kind),
		"iat":    now.Unix(),
		"exp":    expiry.Unix(),
	}

	if c.issuer != "" {
		mc["iss"] = c.issuer
	}
	if c.audience != "" {
		mc["aud"] = c.audience
	}
	if claims.OrganizationID != "" {
		mc["org"] = claims.OrganizationID
	}
	if len(claims.Permissions) > 0 {
		mc["permissions"] = claims.Permissions
	}
	return mc
}
