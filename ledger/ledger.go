package ledger

import (
	"time"
)

// RevokedReason records why a refresh token left the Active state.
type RevokedReason string

const (
	ReasonRotated       RevokedReason = "Rotated"
	ReasonReuseDetected RevokedReason = "ReuseDetected"
	ReasonLogoutAll     RevokedReason = "LogoutAll"
	ReasonExpired       RevokedReason = "Expired"
)

// RefreshToken is one durable row of a token family chain. Families are
// singly linked via PreviousTokenID and never merge or fork: at most one
// token per family is unrevoked at any instant (the head). Revocation never
// deletes a row; deletion belongs to the retention sweep alone.
type RefreshToken struct {
	TokenID         string
	UserID          string
	Family          string
	PreviousTokenID string
	IPAddress       string
	UserAgent       string
	Revoked         bool
	RevokedAt       *time.Time
	RevokedReason   RevokedReason
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// SessionRecord is the durable subset of a session kept for audit/history
// queries. The live copy stays in the ephemeral store.
type SessionRecord struct {
	SessionID string
	UserID    string
	IPAddress string
	UserAgent string
	Device    string
	Browser   string
	OS        string
	Location  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
