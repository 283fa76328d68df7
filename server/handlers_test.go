package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/activity"
	"github.com/jrsteele09/go-session-service/internal/config"
	"github.com/jrsteele09/go-session-service/ledger"
	ledgerfakes "github.com/jrsteele09/go-session-service/ledger/repofakes"
	"github.com/jrsteele09/go-session-service/rotation"
	"github.com/jrsteele09/go-session-service/server"
	"github.com/jrsteele09/go-session-service/sessions/storefakes"
	"github.com/jrsteele09/go-session-service/token"
)

type testFixture struct {
	server *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	sessionStore := storefakes.NewFakeSessionStore()
	ledgerRepo := ledgerfakes.NewFakeLedgerRepo()
	codec := token.NewJWTCodec(token.NewHMACSigner("1234"), token.WithTokenExpiry(15*time.Minute, 7*24*time.Hour))

	engine, err := rotation.NewEngine(rotation.Stores{Sessions: sessionStore, Ledger: ledgerRepo}, codec)
	require.NoError(t, err)

	srv, err := server.New(config.New(), engine, activity.NewDetector(ledgerRepo), nil)
	require.NoError(t, err)

	return &testFixture{server: srv}
}

func (f *testFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0")

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) createSession(t *testing.T) map[string]any {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/v1/sessions", map[string]any{
		"userId": "user-1",
		"email":  "john.doe@example.com",
		"role":   "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateSessionHandler(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.createSession(t)

	tokens := resp["tokens"].(map[string]any)
	require.NotEmpty(t, tokens["accessToken"])
	require.NotEmpty(t, tokens["refreshToken"])

	session := resp["session"].(map[string]any)
	require.NotEmpty(t, session["sessionId"])
	require.Equal(t, "user-1", session["userId"])

	suspicious := resp["suspiciousActivity"].(map[string]any)
	require.Equal(t, false, suspicious["suspicious"])
}

func TestCreateSessionHandlerValidation(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/sessions", map[string]any{"userId": "user-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionHandler(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.createSession(t)
	sessionID := resp["session"].(map[string]any)["sessionId"].(string)

	rec := f.do(t, http.MethodGet, "/v1/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/sessions/no-such-session", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRotateHandler(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.createSession(t)
	refreshToken := resp["tokens"].(map[string]any)["refreshToken"].(string)

	rec := f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{"refreshToken": refreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	var pair map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	require.NotEmpty(t, pair["refreshToken"])
	require.NotEqual(t, refreshToken, pair["refreshToken"])

	// Replaying the consumed token is a reuse incident
	rec = f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{"refreshToken": refreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The cascade also killed the replacement
	rec = f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{"refreshToken": pair["refreshToken"]})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRotateHandlerInvalidToken(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{"refreshToken": "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeSessionHandler(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.createSession(t)
	sessionID := resp["session"].(map[string]any)["sessionId"].(string)

	rec := f.do(t, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Idempotent
	rec = f.do(t, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRevokeUserSessionsHandler(t *testing.T) {
	f := setupTestFixture(t)

	for i := 0; i < 3; i++ {
		f.createSession(t)
	}

	rec := f.do(t, http.MethodDelete, "/v1/users/user-1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.EqualValues(t, 3, counts["revokedCount"])

	rec = f.do(t, http.MethodGet, "/v1/users/user-1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Empty(t, listing["sessions"])
}

func TestActivityCheckHandler(t *testing.T) {
	f := setupTestFixture(t)

	// A burst of logins trips the rapid login heuristic
	for i := 0; i < 4; i++ {
		f.createSession(t)
	}

	rec := f.do(t, http.MethodPost, "/v1/users/user-1/activity-check", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, true, result["suspicious"])
	require.Contains(t, fmt.Sprint(result["reasons"]), activity.ReasonRapidLogins)
}

type outageLedgerRepo struct {
	*ledgerfakes.FakeLedgerRepo
}

func (r *outageLedgerRepo) FindByToken(context.Context, string) (*ledger.RefreshToken, error) {
	return nil, fmt.Errorf("connection refused: %w", ledger.ErrStoreUnavailable)
}

func TestRotateHandlerStoreOutage(t *testing.T) {
	sessionStore := storefakes.NewFakeSessionStore()
	ledgerRepo := &outageLedgerRepo{ledgerfakes.NewFakeLedgerRepo()}
	codec := token.NewJWTCodec(token.NewHMACSigner("1234"), token.WithTokenExpiry(15*time.Minute, 7*24*time.Hour))

	engine, err := rotation.NewEngine(rotation.Stores{Sessions: sessionStore, Ledger: ledgerRepo}, codec)
	require.NoError(t, err)

	srv, err := server.New(config.New(), engine, activity.NewDetector(ledgerRepo), nil)
	require.NoError(t, err)

	f := &testFixture{server: srv}

	// Issuance still works; only the rotation lookup hits the outage
	resp := f.createSession(t)
	refreshToken := resp["tokens"].(map[string]any)["refreshToken"].(string)

	rec := f.do(t, http.MethodPost, "/v1/tokens/rotate", map[string]any{"refreshToken": refreshToken})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminCleanupWithoutReaper(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/admin/cleanup", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
