package rotation

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpired          = errors.New("token expired")
	ErrUnknownToken     = errors.New("unknown token")
	ErrReuseDetected    = errors.New("token reuse detected")
	ErrNotFound         = errors.New("session not found")
	ErrIssuance         = errors.New("session issuance failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)
