package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Get when the session is absent. Absence
// covers both "never existed" and "TTL elapsed"; callers must not treat it
// as a failure.
var ErrSessionNotFound = errors.New("session not found")

// Store is the ephemeral, TTL-based store of live sessions plus the per-user
// index of session ids. Entries silently disappear once their TTL elapses.
type Store interface {
	// Create stores a session snapshot with the given TTL
	Create(ctx context.Context, session *Session, ttl time.Duration) error

	// Get retrieves a session by ID, returning ErrSessionNotFound when
	// the entry is absent or expired
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Update replaces a session snapshot and resets its TTL
	Update(ctx context.Context, session *Session, ttl time.Duration) error

	// Touch refreshes LastActivityAt while preserving the remaining TTL
	Touch(ctx context.Context, sessionID string) error

	// Delete removes a session by ID; deleting an absent session is not an error
	Delete(ctx context.Context, sessionID string) error

	// ListByUser returns the session ids indexed for a user
	ListByUser(ctx context.Context, userID string) ([]string, error)

	// IndexAdd adds a session id to the user's index
	IndexAdd(ctx context.Context, userID, sessionID string) error

	// IndexRemove removes a session id from the user's index
	IndexRemove(ctx context.Context, userID, sessionID string) error
}
