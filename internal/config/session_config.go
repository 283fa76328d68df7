package config

import "time"

type SessionConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetReaperInterval() time.Duration
	GetTokenSigningSecret() string
	GetIssuer() string
	GetAudience() string
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetAccessTokenExpiry() time.Duration {
	return parseDurationEnv("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (Session) GetRefreshTokenExpiry() time.Duration {
	return parseDurationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func (Session) GetReaperInterval() time.Duration {
	return parseDurationEnv("REAPER_INTERVAL", time.Hour)
}

func (Session) GetTokenSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", "")
}

func (Session) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", "go-session-service")
}

func (Session) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "api")
}

func parseDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
