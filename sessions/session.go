package sessions

import (
	"time"

	"github.com/jrsteele09/go-session-service/devices"
)

// Session is the live snapshot of one active login. The ephemeral store owns
// the authoritative copy; a durable subset is mirrored into the ledger for
// audit and suspicious-activity queries.
type Session struct {
	SessionID      string             `json:"sessionId"`
	UserID         string             `json:"userId"`
	Email          string             `json:"email"`
	OrganizationID string             `json:"organizationId,omitempty"`
	Role           string             `json:"role"`
	DeviceInfo     devices.DeviceInfo `json:"deviceInfo"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
	ExpiresAt      time.Time          `json:"expiresAt"`
}
