package repofakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
)

var _ ledger.Repo = (*FakeLedgerRepo)(nil)

// FakeLedgerRepo is an in-memory ledger.Repo used by tests. RevokeIfActive
// performs a real compare-and-set under the repo lock, so concurrent
// rotation tests exercise the same race the postgres implementation
// resolves with its conditional UPDATE.
type FakeLedgerRepo struct {
	tokens   map[string]*ledger.RefreshToken
	sessions map[string]*ledger.SessionRecord
	nowTime  func() time.Time
	lock     sync.RWMutex
}

func NewFakeLedgerRepo() *FakeLedgerRepo {
	return &FakeLedgerRepo{
		tokens:   make(map[string]*ledger.RefreshToken),
		sessions: make(map[string]*ledger.SessionRecord),
		nowTime:  time.Now,
	}
}

// SetNowTime overrides the clock used for revocation timestamps (testing only)
func (f *FakeLedgerRepo) SetNowTime(nowFunc func() time.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.nowTime = nowFunc
}

func (f *FakeLedgerRepo) CreateHead(_ context.Context, tokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	return f.insert(tokenID, "", userID, family, deviceInfo, expiresAt)
}

func (f *FakeLedgerRepo) AppendChild(_ context.Context, tokenID, previousTokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	return f.insert(tokenID, previousTokenID, userID, family, deviceInfo, expiresAt)
}

func (f *FakeLedgerRepo) insert(tokenID, previousTokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	token := &ledger.RefreshToken{
		TokenID:         tokenID,
		UserID:          userID,
		Family:          family,
		PreviousTokenID: previousTokenID,
		IPAddress:       deviceInfo.IPAddress,
		UserAgent:       deviceInfo.UserAgent,
		ExpiresAt:       expiresAt,
		CreatedAt:       f.nowTime(),
	}
	f.tokens[tokenID] = token

	copied := *token
	return &copied, nil
}

func (f *FakeLedgerRepo) FindByToken(_ context.Context, tokenID string) (*ledger.RefreshToken, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	token, ok := f.tokens[tokenID]
	if !ok {
		return nil, ledger.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (f *FakeLedgerRepo) RevokeIfActive(_ context.Context, tokenID string, reason ledger.RevokedReason) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	token, ok := f.tokens[tokenID]
	if !ok || token.Revoked {
		return false, nil
	}

	now := f.nowTime()
	token.Revoked = true
	token.RevokedAt = &now
	token.RevokedReason = reason
	return true, nil
}

func (f *FakeLedgerRepo) RevokeFamily(_ context.Context, family string, reason ledger.RevokedReason) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var count int64
	now := f.nowTime()
	for _, token := range f.tokens {
		if token.Family != family || token.Revoked {
			continue
		}
		token.Revoked = true
		token.RevokedAt = &now
		token.RevokedReason = reason
		count++
	}
	return count, nil
}

func (f *FakeLedgerRepo) DeleteExpiredBefore(_ context.Context, t time.Time) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var count int64
	for id, token := range f.tokens {
		if !token.ExpiresAt.After(t) {
			delete(f.tokens, id)
			count++
		}
	}
	return count, nil
}

func (f *FakeLedgerRepo) InsertSession(_ context.Context, record *ledger.SessionRecord) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	copied := *record
	f.sessions[record.SessionID] = &copied
	return nil
}

func (f *FakeLedgerRepo) MarkSessionExpired(_ context.Context, sessionID string, at time.Time) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if record, ok := f.sessions[sessionID]; ok {
		record.ExpiresAt = at
	}
	return nil
}

func (f *FakeLedgerRepo) RecentSessionsByUser(_ context.Context, userID string, since time.Time, limit int) ([]*ledger.SessionRecord, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	var records []*ledger.SessionRecord
	for _, record := range f.sessions {
		if record.UserID != userID || record.CreatedAt.Before(since) {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}

	// Newest first, as the postgres implementation orders them
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *FakeLedgerRepo) DeleteExpiredSessionsBefore(_ context.Context, t time.Time) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var count int64
	for id, record := range f.sessions {
		if !record.ExpiresAt.After(t) {
			delete(f.sessions, id)
			count++
		}
	}
	return count, nil
}

// TokensByFamily returns copies of every stored token in a family (testing only)
func (f *FakeLedgerRepo) TokensByFamily(family string) []*ledger.RefreshToken {
	f.lock.RLock()
	defer f.lock.RUnlock()

	var tokens []*ledger.RefreshToken
	for _, token := range f.tokens {
		if token.Family == family {
			copied := *token
			tokens = append(tokens, &copied)
		}
	}
	return tokens
}
