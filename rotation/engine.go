package rotation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
	"github.com/jrsteele09/go-session-service/sessions"
	"github.com/jrsteele09/go-session-service/token"
)

const tokenIDLength = 32 // bytes of entropy behind each ledger token id

// Stores holds the two store dependencies of the rotation engine.
type Stores struct {
	Sessions sessions.Store // Ephemeral, TTL-based live session store
	Ledger   ledger.Repo    // Durable refresh-token ledger + session mirror
}

// CreateSessionParams carries the authenticated identity handed over by the
// upstream authenticator (password check, OAuth handshake) together with the
// already-classified device info.
type CreateSessionParams struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	Permissions    []string
	DeviceInfo     devices.DeviceInfo
}

// CreateSessionResult is what a successful login hands back upstream.
type CreateSessionResult struct {
	Tokens  *token.TokenPair  `json:"tokens"`
	Session *sessions.Session `json:"session"`
}

// Engine is the session and refresh-token rotation state machine. It is
// stateless: any number of process instances may run CreateSession/Rotate
// concurrently against the same shared stores. The only synchronization it
// relies on is the ledger's conditional revoke-if-active write.
type Engine struct {
	stores     Stores
	codec      token.Codec
	refreshTTL time.Duration
	nowTime    func() time.Time // nowTime function (injectable for testing)
}

// EngineOption defines a function type to modify the Engine instance.
type EngineOption func(*Engine)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

// WithRefreshTTL sets the lifetime of a refresh token, and with it the
// session TTL.
func WithRefreshTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.refreshTTL = ttl
	}
}

// NewEngine initializes a new rotation Engine with required dependencies.
// Optional configuration can be provided via options (e.g. WithNowTime for
// testing).
func NewEngine(stores Stores, codec token.Codec, options ...EngineOption) (*Engine, error) {
	if stores.Sessions == nil {
		return nil, errors.New("[NewEngine] Sessions store is required")
	}
	if stores.Ledger == nil {
		return nil, errors.New("[NewEngine] Ledger repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewEngine] token codec is required")
	}

	engine := &Engine{
		stores:     stores,
		codec:      codec,
		refreshTTL: 7 * 24 * time.Hour,
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(engine)
	}

	return engine, nil
}

// CreateSession establishes a new login: a fresh session, a new token
// family, and the family's head refresh token. The caller must not consider
// the session established unless CreateSession returns without error.
func (e *Engine) CreateSession(ctx context.Context, params CreateSessionParams) (*CreateSessionResult, error) {
	now := e.nowTime()
	sessionID := uuid.New().String()
	family := uuid.New().String()
	expiresAt := now.Add(e.refreshTTL)

	tokenID, err := newTokenID()
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.CreateSession] mint token id")
	}

	pair, err := e.codec.GenerateTokenPair(token.Claims{
		UserID:         params.UserID,
		Email:          params.Email,
		OrganizationID: params.OrganizationID,
		Role:           params.Role,
		Permissions:    params.Permissions,
		SessionID:      sessionID,
		TokenID:        tokenID,
		Family:         family,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.CreateSession] GenerateTokenPair")
	}

	if _, err := e.stores.Ledger.CreateHead(ctx, tokenID, params.UserID, family, params.DeviceInfo, expiresAt); err != nil {
		return nil, errors.Wrapf(ErrIssuance, "[Engine.CreateSession] ledger CreateHead: %v", err)
	}

	if err := e.stores.Ledger.InsertSession(ctx, &ledger.SessionRecord{
		SessionID: sessionID,
		UserID:    params.UserID,
		IPAddress: params.DeviceInfo.IPAddress,
		UserAgent: params.DeviceInfo.UserAgent,
		Device:    params.DeviceInfo.Device,
		Browser:   params.DeviceInfo.Browser,
		OS:        params.DeviceInfo.OS,
		Location:  params.DeviceInfo.Location,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return nil, errors.Wrapf(ErrIssuance, "[Engine.CreateSession] ledger InsertSession: %v", err)
	}

	session := &sessions.Session{
		SessionID:      sessionID,
		UserID:         params.UserID,
		Email:          params.Email,
		OrganizationID: params.OrganizationID,
		Role:           params.Role,
		DeviceInfo:     params.DeviceInfo,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
	}

	if err := e.stores.Sessions.Create(ctx, session, expiresAt.Sub(now)); err != nil {
		return nil, errors.Wrapf(ErrIssuance, "[Engine.CreateSession] session store Create: %v", err)
	}
	if err := e.stores.Sessions.IndexAdd(ctx, params.UserID, sessionID); err != nil {
		return nil, errors.Wrapf(ErrIssuance, "[Engine.CreateSession] session store IndexAdd: %v", err)
	}

	log.Info().
		Str("user_id", params.UserID).
		Str("session_id", sessionID).
		Msg("session created")

	return &CreateSessionResult{Tokens: pair, Session: session}, nil
}

// Rotate consumes a presented refresh token and issues the next head of its
// family. Presenting a token that has already been consumed is treated as
// evidence of theft: the whole family is revoked and ErrReuseDetected is
// returned. A lost race on the conditional revoke is indistinguishable from
// true reuse and is handled identically.
func (e *Engine) Rotate(ctx context.Context, presentedToken string, deviceInfo devices.DeviceInfo) (*token.TokenPair, error) {
	claims, err := e.codec.VerifyToken(presentedToken, token.KindRefresh)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}

	record, err := e.stores.Ledger.FindByToken(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, ledger.ErrTokenNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, ledgerErr("[Engine.Rotate] ledger FindByToken", err)
	}

	if record.Revoked {
		return nil, e.cascadeReuse(ctx, record, "revoked token presented")
	}

	now := e.nowTime()
	if now.After(record.ExpiresAt) {
		return nil, ErrExpired
	}

	won, err := e.stores.Ledger.RevokeIfActive(ctx, record.TokenID, ledger.ReasonRotated)
	if err != nil {
		return nil, ledgerErr("[Engine.Rotate] ledger RevokeIfActive", err)
	}
	if !won {
		// Another caller consumed this token between FindByToken and the
		// conditional revoke. The losing side of the race cannot be told
		// apart from a replayed stolen token.
		return nil, e.cascadeReuse(ctx, record, "lost revoke-if-active race")
	}

	newTokenID, err := newTokenID()
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Rotate] mint token id")
	}

	newExpiresAt := now.Add(e.refreshTTL)
	if _, err := e.stores.Ledger.AppendChild(ctx, newTokenID, record.TokenID, record.UserID, record.Family, deviceInfo, newExpiresAt); err != nil {
		return nil, ledgerErr("[Engine.Rotate] ledger AppendChild", err)
	}

	pair, err := e.codec.GenerateTokenPair(token.Claims{
		UserID:         claims.UserID,
		Email:          claims.Email,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
		Permissions:    claims.Permissions,
		SessionID:      claims.SessionID,
		TokenID:        newTokenID,
		Family:         record.Family,
		ExpiresAt:      newExpiresAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Rotate] GenerateTokenPair")
	}

	e.refreshSessionEntry(ctx, claims.SessionID, deviceInfo, now, newExpiresAt)

	return pair, nil
}

// refreshSessionEntry updates the ephemeral session for a rotated token. A
// missing entry (TTL eviction, or a crash between the two store writes at
// creation) is not reconstructed from the ledger; the entry stays absent
// until the client logs in again.
func (e *Engine) refreshSessionEntry(ctx context.Context, sessionID string, deviceInfo devices.DeviceInfo, now, expiresAt time.Time) {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("session refresh read failed")
		}
		return
	}

	session.LastActivityAt = now
	session.ExpiresAt = expiresAt
	session.DeviceInfo = deviceInfo
	if err := e.stores.Sessions.Update(ctx, session, expiresAt.Sub(now)); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session refresh write failed")
	}
}

// cascadeReuse revokes record's entire family and returns ErrReuseDetected.
// This branch must never silently succeed.
func (e *Engine) cascadeReuse(ctx context.Context, record *ledger.RefreshToken, cause string) error {
	count, err := e.stores.Ledger.RevokeFamily(ctx, record.Family, ledger.ReasonReuseDetected)
	if err != nil {
		log.Error().Err(err).
			Str("family", record.Family).
			Str("user_id", record.UserID).
			Msg("family cascade revoke failed after reuse detection")
		return errors.Wrap(ErrReuseDetected, "[Engine.Rotate] RevokeFamily")
	}

	log.Warn().
		Str("family", record.Family).
		Str("user_id", record.UserID).
		Str("cause", cause).
		Int64("revoked", count).
		Msg("refresh token reuse detected, family revoked")

	return ErrReuseDetected
}

// GetSession returns the live session snapshot, or ErrNotFound when the
// entry is absent. Absence covers revoked as well as TTL-expired sessions.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(ErrStoreUnavailable, "[Engine.GetSession] session store Get: %v", err)
	}
	return session, nil
}

// UpdateSessionActivity refreshes the session's LastActivityAt without
// touching its TTL. Best effort: store failures are logged and swallowed.
func (e *Engine) UpdateSessionActivity(ctx context.Context, sessionID string) {
	if err := e.stores.Sessions.Touch(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session activity update failed")
	}
}

// GetUserSessions returns the live sessions currently indexed for a user.
// Index entries whose session has already expired are pruned as they are
// discovered.
func (e *Engine) GetUserSessions(ctx context.Context, userID string) ([]*sessions.Session, error) {
	ids, err := e.stores.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(ErrStoreUnavailable, "[Engine.GetUserSessions] session store ListByUser: %v", err)
	}

	live := make([]*sessions.Session, 0, len(ids))
	for _, id := range ids {
		session, err := e.stores.Sessions.Get(ctx, id)
		if errors.Is(err, sessions.ErrSessionNotFound) {
			// Expired entry still in the index, prune lazily
			if err := e.stores.Sessions.IndexRemove(ctx, userID, id); err != nil {
				log.Warn().Err(err).Str("session_id", id).Msg("index prune failed")
			}
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(ErrStoreUnavailable, "[Engine.GetUserSessions] session store Get: %v", err)
		}
		live = append(live, session)
	}
	return live, nil
}

// RevokeSession removes one session from the ephemeral store and its user
// index, and force-expires the durable mirror row. It does not revoke the
// token family; that is a separate operation. Revoking an absent session is
// not an error.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		return errors.Wrapf(ErrStoreUnavailable, "[Engine.RevokeSession] session store Get: %v", err)
	}

	if err := e.stores.Sessions.Delete(ctx, sessionID); err != nil {
		return errors.Wrapf(ErrStoreUnavailable, "[Engine.RevokeSession] session store Delete: %v", err)
	}

	if session != nil {
		if err := e.stores.Sessions.IndexRemove(ctx, session.UserID, sessionID); err != nil {
			return errors.Wrapf(ErrStoreUnavailable, "[Engine.RevokeSession] session store IndexRemove: %v", err)
		}
	}

	if err := e.stores.Ledger.MarkSessionExpired(ctx, sessionID, e.nowTime()); err != nil {
		return ledgerErr("[Engine.RevokeSession] ledger MarkSessionExpired", err)
	}

	return nil
}

// RevokeAllUserSessions revokes every session of a user except the optional
// excluded one, returning the count actually revoked. The operation is not
// atomic across the set: a partial failure leaves some sessions alive, and
// the caller is expected to retry. It is idempotent.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID, exceptSessionID string) (int, error) {
	ids, err := e.stores.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrapf(ErrStoreUnavailable, "[Engine.RevokeAllUserSessions] session store ListByUser: %v", err)
	}

	revoked := 0
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		if err := e.RevokeSession(ctx, id); err != nil {
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("session_id", id).
				Msg("session survived bulk revoke")
			continue
		}
		revoked++
	}

	log.Info().
		Str("user_id", userID).
		Int("revoked", revoked).
		Msg("bulk session revoke")

	return revoked, nil
}

// RevokeTokenFamily is the administrative direct family revoke.
func (e *Engine) RevokeTokenFamily(ctx context.Context, family string, reason ledger.RevokedReason) (int64, error) {
	count, err := e.stores.Ledger.RevokeFamily(ctx, family, reason)
	if err != nil {
		return 0, ledgerErr("[Engine.RevokeTokenFamily] ledger RevokeFamily", err)
	}
	return count, nil
}

// ledgerErr wraps a ledger failure, translating a store outage into
// ErrStoreUnavailable so callers can tell it apart from an internal fault.
func ledgerErr(msg string, err error) error {
	if errors.Is(err, ledger.ErrStoreUnavailable) {
		return errors.Wrapf(ErrStoreUnavailable, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}

func newTokenID() (string, error) {
	tokenBytes := make([]byte, tokenIDLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}
