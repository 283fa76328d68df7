package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/sessions"
)

var _ sessions.Store = (*Store)(nil)

// Store implements sessions.Store on top of Redis. Session snapshots live at
// session:{id} with a TTL; the per-user index is a plain set at
// user:{id}:sessions with no TTL, pruned lazily on revoke.
type Store struct {
	client  *redis.Client
	nowTime func() time.Time
}

type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func New(client *redis.Client, options ...StoreOption) *Store {
	s := &Store{
		client:  client,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func userSessionsKey(userID string) string {
	return fmt.Sprintf("user:%s:sessions", userID)
}

func (s *Store) Create(ctx context.Context, session *sessions.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[Store.Create] marshal session")
	}
	if err := s.client.Set(ctx, sessionKey(session.SessionID), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[Store.Create] redis SET")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Get] redis GET")
	}

	var session sessions.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrap(err, "[Store.Get] unmarshal session")
	}
	return &session, nil
}

func (s *Store) Update(ctx context.Context, session *sessions.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[Store.Update] marshal session")
	}
	if err := s.client.Set(ctx, sessionKey(session.SessionID), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[Store.Update] redis SET")
	}
	return nil
}

// Touch refreshes LastActivityAt in place. The write uses KEEPTTL so the
// remaining expiry is untouched. Failures are logged and swallowed: liveness
// tracking is not safety critical.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("session touch failed")
		}
		return nil
	}

	session.LastActivityAt = s.nowTime()
	payload, err := json.Marshal(session)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session touch failed")
		return nil
	}

	if err := s.client.Set(ctx, sessionKey(sessionID), payload, redis.KeepTTL).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session touch failed")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "[Store.Delete] redis DEL")
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.ListByUser] redis SMEMBERS")
	}
	return ids, nil
}

func (s *Store) IndexAdd(ctx context.Context, userID, sessionID string) error {
	if err := s.client.SAdd(ctx, userSessionsKey(userID), sessionID).Err(); err != nil {
		return errors.Wrap(err, "[Store.IndexAdd] redis SADD")
	}
	return nil
}

func (s *Store) IndexRemove(ctx context.Context, userID, sessionID string) error {
	if err := s.client.SRem(ctx, userSessionsKey(userID), sessionID).Err(); err != nil {
		return errors.Wrap(err, "[Store.IndexRemove] redis SREM")
	}
	return nil
}
