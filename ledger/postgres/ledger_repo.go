package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/internal/utils"
	"github.com/jrsteele09/go-session-service/ledger"
)

var _ ledger.Repo = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repo using PostgreSQL.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

// NewLedgerRepo creates a new PostgreSQL-backed token ledger.
func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{
		pool: pool,
	}
}

const insertTokenQuery = `
	INSERT INTO refresh_tokens (
		token, user_id, family, previous_token_id,
		ip_address, user_agent, expires_at, created_at
	) VALUES (
		$1, $2, $3, $4, $5::inet, $6, $7, now()
	)
	RETURNING created_at
`

func (r *LedgerRepo) CreateHead(ctx context.Context, tokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	return r.insertToken(ctx, tokenID, "", userID, family, deviceInfo, expiresAt)
}

func (r *LedgerRepo) AppendChild(ctx context.Context, tokenID, previousTokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	return r.insertToken(ctx, tokenID, previousTokenID, userID, family, deviceInfo, expiresAt)
}

func (r *LedgerRepo) insertToken(ctx context.Context, tokenID, previousTokenID, userID, family string, deviceInfo devices.DeviceInfo, expiresAt time.Time) (*ledger.RefreshToken, error) {
	token := &ledger.RefreshToken{
		TokenID:         tokenID,
		UserID:          userID,
		Family:          family,
		PreviousTokenID: previousTokenID,
		IPAddress:       deviceInfo.IPAddress,
		UserAgent:       deviceInfo.UserAgent,
		ExpiresAt:       expiresAt,
	}

	err := r.pool.QueryRow(ctx, insertTokenQuery,
		tokenID,
		userID,
		family,
		nullable(previousTokenID),
		nullable(deviceInfo.IPAddress),
		deviceInfo.UserAgent,
		expiresAt,
	).Scan(&token.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert refresh token: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("family", family).
		Str("user_id", userID).
		Msg("inserted refresh token")

	return token, nil
}

func (r *LedgerRepo) FindByToken(ctx context.Context, tokenID string) (*ledger.RefreshToken, error) {
	query := `
		SELECT
			token, user_id, family, previous_token_id,
			ip_address, user_agent, revoked, revoked_at,
			revoked_reason, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`

	var token ledger.RefreshToken
	var previousTokenID, revokedReason, userAgent *string
	var ipAddress *netip.Prefix
	err := r.pool.QueryRow(ctx, query, tokenID).Scan(
		&token.TokenID,
		&token.UserID,
		&token.Family,
		&previousTokenID,
		&ipAddress,
		&userAgent,
		&token.Revoked,
		&token.RevokedAt,
		&revokedReason,
		&token.ExpiresAt,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", mapPostgresError(err))
	}

	if previousTokenID != nil {
		token.PreviousTokenID = *previousTokenID
	}
	if revokedReason != nil {
		token.RevokedReason = ledger.RevokedReason(*revokedReason)
	}
	if userAgent != nil {
		token.UserAgent = *userAgent
	}
	token.IPAddress = ipString(ipAddress)

	return &token, nil
}

// RevokeIfActive is the single compare-and-set the rotation engine depends
// on. The WHERE clause guarantees only one concurrent caller can observe
// revoked = false; everyone else gets false back.
func (r *LedgerRepo) RevokeIfActive(ctx context.Context, tokenID string, reason ledger.RevokedReason) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = now(), revoked_reason = $2
		WHERE token = $1 AND revoked = false
	`

	tag, err := r.pool.Exec(ctx, query, tokenID, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", mapPostgresError(err))
	}

	return tag.RowsAffected() == 1, nil
}

func (r *LedgerRepo) RevokeFamily(ctx context.Context, family string, reason ledger.RevokedReason) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = now(), revoked_reason = $2
		WHERE family = $1 AND revoked = false
	`

	tag, err := r.pool.Exec(ctx, query, family, string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token family: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("family", family).
		Str("reason", string(reason)).
		Int64("count", tag.RowsAffected()).
		Msg("revoked token family")

	return tag.RowsAffected(), nil
}

func (r *LedgerRepo) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

func (r *LedgerRepo) InsertSession(ctx context.Context, record *ledger.SessionRecord) error {
	query := `
		INSERT INTO sessions (
			session_id, user_id, ip_address, user_agent,
			device, browser, os, location,
			expires_at, created_at
		) VALUES (
			$1, $2, $3::inet, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.pool.Exec(ctx, query,
		record.SessionID,
		record.UserID,
		nullable(record.IPAddress),
		record.UserAgent,
		record.Device,
		record.Browser,
		record.OS,
		record.Location,
		record.ExpiresAt,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert session record: %w", mapPostgresError(err))
	}

	return nil
}

func (r *LedgerRepo) MarkSessionExpired(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET expires_at = $2 WHERE session_id = $1`, sessionID, at)
	if err != nil {
		return fmt.Errorf("failed to expire session record: %w", mapPostgresError(err))
	}
	return nil
}

func (r *LedgerRepo) RecentSessionsByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*ledger.SessionRecord, error) {
	query := `
		SELECT
			session_id, user_id, ip_address, user_agent,
			device, browser, os, location,
			expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var records []*ledger.SessionRecord
	for rows.Next() {
		var record ledger.SessionRecord
		var ipAddress *netip.Prefix
		var userAgent, device, browser, os, location *string
		if err := rows.Scan(
			&record.SessionID,
			&record.UserID,
			&ipAddress,
			&userAgent,
			&device,
			&browser,
			&os,
			&location,
			&record.ExpiresAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}

		record.IPAddress = ipString(ipAddress)
		record.UserAgent = utils.Value(userAgent)
		record.Device = utils.Value(device)
		record.Browser = utils.Value(browser)
		record.OS = utils.Value(os)
		record.Location = utils.Value(location)

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session records: %w", mapPostgresError(err))
	}

	return records, nil
}

func (r *LedgerRepo) DeleteExpiredSessionsBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session records: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// nullable converts empty strings to nil so optional TEXT/INET columns store
// NULL instead of ''.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ipString renders a scanned INET value as the bare address. pgx decodes the
// column as a prefix, so a stored 1.2.3.4 comes back carrying a /32 mask.
func ipString(p *netip.Prefix) string {
	if p == nil {
		return ""
	}
	return p.Addr().String()
}
