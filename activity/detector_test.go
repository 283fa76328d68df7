package activity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/activity"
	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
	ledgerfakes "github.com/jrsteele09/go-session-service/ledger/repofakes"
)

const testUserID = "user-1"

type testFixture struct {
	ledgerRepo *ledgerfakes.FakeLedgerRepo
	detector   *activity.Detector
	now        time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		ledgerRepo: ledgerfakes.NewFakeLedgerRepo(),
		now:        time.Now().Truncate(time.Second),
	}
	f.detector = activity.NewDetector(f.ledgerRepo, activity.WithNowTime(func() time.Time { return f.now }))
	return f
}

func (f *testFixture) insertSession(t *testing.T, device, location string, age time.Duration) {
	t.Helper()

	createdAt := f.now.Add(-age)
	err := f.ledgerRepo.InsertSession(context.Background(), &ledger.SessionRecord{
		SessionID: fmt.Sprintf("session-%s-%s-%d", device, location, age),
		UserID:    testUserID,
		IPAddress: "1.2.3.4",
		Device:    device,
		ExpiresAt: createdAt.Add(24 * time.Hour),
		CreatedAt: createdAt,
		Location:  location,
	})
	require.NoError(t, err)
}

func TestCheckNoHistory(t *testing.T) {
	f := setupTestFixture(t)

	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{Device: "Desktop"})
	require.False(t, result.Suspicious)
	require.Empty(t, result.Reasons)
}

func TestCheckKnownDeviceSameLocation(t *testing.T) {
	f := setupTestFixture(t)
	f.insertSession(t, "Desktop", "London, UK", time.Hour)

	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Desktop",
		Location: "London, UK",
	})
	require.False(t, result.Suspicious)
}

func TestCheckLocationChange(t *testing.T) {
	f := setupTestFixture(t)
	f.insertSession(t, "Desktop", "London, UK", time.Hour)

	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Desktop",
		Location: "Sydney, AU",
	})
	require.True(t, result.Suspicious)
	require.Contains(t, result.Reasons, activity.ReasonLocationChange)
}

func TestCheckLocationMissingOnEitherSide(t *testing.T) {
	f := setupTestFixture(t)
	f.insertSession(t, "Desktop", "", time.Hour)

	// The heuristic only fires when both locations are present
	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Desktop",
		Location: "Sydney, AU",
	})
	require.False(t, result.Suspicious)
}

func TestCheckUnknownDevice(t *testing.T) {
	f := setupTestFixture(t)
	f.insertSession(t, "Desktop", "London, UK", time.Hour)
	f.insertSession(t, "Desktop", "London, UK", 2*time.Hour)

	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Mobile",
		Location: "London, UK",
	})
	require.True(t, result.Suspicious)
	require.Contains(t, result.Reasons, activity.ReasonUnknownDevice)
}

func TestCheckRapidLogins(t *testing.T) {
	f := setupTestFixture(t)

	// Four logins inside the ten minute window, different IPs don't matter
	for i := 0; i < 4; i++ {
		f.insertSession(t, "Desktop", "London, UK", time.Duration(i)*time.Minute)
	}

	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Desktop",
		Location: "London, UK",
	})
	require.True(t, result.Suspicious)
	require.Contains(t, result.Reasons, activity.ReasonRapidLogins)

	// A fifth login from a new device trips the unknown device reason too
	result = f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{
		Device:   "Mobile",
		Location: "London, UK",
	})
	require.True(t, result.Suspicious)
	require.Contains(t, result.Reasons, activity.ReasonRapidLogins)
	require.Contains(t, result.Reasons, activity.ReasonUnknownDevice)
}

func TestCheckOldHistoryIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.insertSession(t, "Desktop", "London, UK", 25*time.Hour)

	// Sessions older than the 24h window never count
	result := f.detector.Check(context.Background(), testUserID, devices.DeviceInfo{Device: "Mobile"})
	require.False(t, result.Suspicious)
}

type failingHistoryRepo struct {
	*ledgerfakes.FakeLedgerRepo
}

func (r *failingHistoryRepo) RecentSessionsByUser(context.Context, string, time.Time, int) ([]*ledger.SessionRecord, error) {
	return nil, errors.New("history read failed")
}

func TestCheckDegradesOnReadFailure(t *testing.T) {
	detector := activity.NewDetector(&failingHistoryRepo{ledgerfakes.NewFakeLedgerRepo()})

	result := detector.Check(context.Background(), testUserID, devices.DeviceInfo{Device: "Desktop"})
	require.False(t, result.Suspicious)
	require.Empty(t, result.Reasons)
}
