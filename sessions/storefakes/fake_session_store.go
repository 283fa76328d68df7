package storefakes

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-service/sessions"
)

var _ sessions.Store = (*FakeSessionStore)(nil)

type entry struct {
	session  sessions.Session
	deadline time.Time
}

// FakeSessionStore is an in-memory sessions.Store with TTL emulation, used
// by tests in place of Redis.
type FakeSessionStore struct {
	store   map[string]entry
	index   map[string]map[string]struct{} // userID -> session ids
	nowTime func() time.Time
	lock    sync.RWMutex
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{
		store:   make(map[string]entry),
		index:   make(map[string]map[string]struct{}),
		nowTime: time.Now,
	}
}

// SetNowTime overrides the clock used for TTL checks (testing only)
func (f *FakeSessionStore) SetNowTime(nowFunc func() time.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.nowTime = nowFunc
}

func (f *FakeSessionStore) Create(_ context.Context, session *sessions.Session, ttl time.Duration) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.store[session.SessionID] = entry{session: *session, deadline: f.nowTime().Add(ttl)}
	return nil
}

func (f *FakeSessionStore) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	e, ok := f.store[sessionID]
	if !ok || f.nowTime().After(e.deadline) {
		return nil, sessions.ErrSessionNotFound
	}
	session := e.session
	return &session, nil
}

func (f *FakeSessionStore) Update(_ context.Context, session *sessions.Session, ttl time.Duration) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.store[session.SessionID] = entry{session: *session, deadline: f.nowTime().Add(ttl)}
	return nil
}

func (f *FakeSessionStore) Touch(_ context.Context, sessionID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	e, ok := f.store[sessionID]
	if !ok || f.nowTime().After(e.deadline) {
		return nil
	}
	e.session.LastActivityAt = f.nowTime()
	f.store[sessionID] = e
	return nil
}

func (f *FakeSessionStore) Delete(_ context.Context, sessionID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.store, sessionID)
	return nil
}

func (f *FakeSessionStore) ListByUser(_ context.Context, userID string) ([]string, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	ids := make([]string, 0, len(f.index[userID]))
	for id := range f.index[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *FakeSessionStore) IndexAdd(_ context.Context, userID, sessionID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.index[userID] == nil {
		f.index[userID] = make(map[string]struct{})
	}
	f.index[userID][sessionID] = struct{}{}
	return nil
}

func (f *FakeSessionStore) IndexRemove(_ context.Context, userID, sessionID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.index[userID], sessionID)
	return nil
}
