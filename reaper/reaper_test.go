package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
	ledgerfakes "github.com/jrsteele09/go-session-service/ledger/repofakes"
	"github.com/jrsteele09/go-session-service/reaper"
)

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	repo := ledgerfakes.NewFakeLedgerRepo()
	now := time.Now().Truncate(time.Second)

	// One live and one expired token, one live and one expired session row
	_, err := repo.CreateHead(ctx, "token-live", "user-1", "family-1", devices.DeviceInfo{}, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateHead(ctx, "token-stale", "user-1", "family-2", devices.DeviceInfo{}, now.Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.InsertSession(ctx, &ledger.SessionRecord{
		SessionID: "session-live", UserID: "user-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))
	require.NoError(t, repo.InsertSession(ctx, &ledger.SessionRecord{
		SessionID: "session-stale", UserID: "user-1", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour),
	}))

	sweeper := reaper.New(repo, time.Hour, reaper.WithNowTime(func() time.Time { return now }))
	sweeper.CleanupExpired(ctx)

	_, err = repo.FindByToken(ctx, "token-live")
	require.NoError(t, err)
	_, err = repo.FindByToken(ctx, "token-stale")
	require.ErrorIs(t, err, ledger.ErrTokenNotFound)

	records, err := repo.RecentSessionsByUser(ctx, "user-1", now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "session-live", records[0].SessionID)
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := ledgerfakes.NewFakeLedgerRepo()
	sweeper := reaper.New(repo, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancellation")
	}
}
