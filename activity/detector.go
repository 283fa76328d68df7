package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
)

// Reasons a login can be flagged as suspicious. All heuristics are additive.
const (
	ReasonLocationChange = "Location change detected"
	ReasonUnknownDevice  = "Unknown device"
	ReasonRapidLogins    = "Rapid login attempts"
)

const (
	historyWindow    = 24 * time.Hour
	historyLimit     = 10
	rapidLoginWindow = 10 * time.Minute
	rapidLoginLimit  = 3
)

// Result is the advisory outcome of a suspicious-activity check.
type Result struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons"`
}

// Detector runs read-only heuristics over a user's recent durable session
// history. It is purely advisory: it never blocks login or rotation, and a
// failed history read degrades to a neutral result.
type Detector struct {
	ledger  ledger.Repo
	nowTime func() time.Time
}

type DetectorOption func(*Detector)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) DetectorOption {
	return func(d *Detector) {
		d.nowTime = nowFunc
	}
}

func NewDetector(repo ledger.Repo, options ...DetectorOption) *Detector {
	d := &Detector{
		ledger:  repo,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Check evaluates the heuristics for userID against deviceInfo. Any
// triggered reason sets Suspicious.
func (d *Detector) Check(ctx context.Context, userID string, deviceInfo devices.DeviceInfo) Result {
	now := d.nowTime()

	recent, err := d.ledger.RecentSessionsByUser(ctx, userID, now.Add(-historyWindow), historyLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("suspicious activity check degraded, history read failed")
		return Result{}
	}
	if len(recent) == 0 {
		return Result{}
	}

	var reasons []string

	// Most recent session first; the postgres and fake repos both order
	// newest first.
	if deviceInfo.Location != "" && recent[0].Location != "" && recent[0].Location != deviceInfo.Location {
		reasons = append(reasons, ReasonLocationChange)
	}

	if deviceInfo.Device != "" && !knownDevice(recent, deviceInfo.Device) {
		reasons = append(reasons, ReasonUnknownDevice)
	}

	if rapidLogins(recent, now) > rapidLoginLimit {
		reasons = append(reasons, ReasonRapidLogins)
	}

	return Result{Suspicious: len(reasons) > 0, Reasons: reasons}
}

func knownDevice(recent []*ledger.SessionRecord, device string) bool {
	for _, record := range recent {
		if record.Device == device {
			return true
		}
	}
	return false
}

func rapidLogins(recent []*ledger.SessionRecord, now time.Time) int {
	cutoff := now.Add(-rapidLoginWindow)
	count := 0
	for _, record := range recent {
		if record.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count
}
