package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-session-service/devices"
)

var (
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// Repo is the durable, transactional store of refresh-token records and the
// session mirror. RevokeIfActive is the only operation the rotation engine
// relies on for correctness under concurrency: it must be a single atomic
// compare-and-set at the store.
type Repo interface {
	// CreateHead inserts the first token of a new family
	CreateHead(ctx context.Context, tokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*RefreshToken, error)

	// FindByToken looks a token up by id, returning ErrTokenNotFound on a miss
	FindByToken(ctx context.Context, tokenID string) (*RefreshToken, error)

	// RevokeIfActive conditionally revokes a token. It returns true only if
	// the row's revoked flag was false immediately before the write
	// (UPDATE ... WHERE token = $1 AND revoked = false).
	RevokeIfActive(ctx context.Context, tokenID string, reason RevokedReason) (bool, error)

	// AppendChild inserts a new head linked to the token it replaces
	AppendChild(ctx context.Context, tokenID, previousTokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*RefreshToken, error)

	// RevokeFamily revokes every unrevoked token in a family, returning the
	// number of rows affected
	RevokeFamily(ctx context.Context, family string, reason RevokedReason) (int64, error)

	// DeleteExpiredBefore removes token rows whose expiry is at or before t
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)

	// InsertSession writes the durable session mirror row
	InsertSession(ctx context.Context, record *SessionRecord) error

	// MarkSessionExpired force-expires a session mirror row
	MarkSessionExpired(ctx context.Context, sessionID string, at time.Time) error

	// RecentSessionsByUser returns up to limit session rows created since
	// the given time, newest first
	RecentSessionsByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*SessionRecord, error)

	// DeleteExpiredSessionsBefore removes session rows whose expiry is at or
	// before t
	DeleteExpiredSessionsBefore(ctx context.Context, t time.Time) (int64, error)
}
