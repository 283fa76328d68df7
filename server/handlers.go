package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/ledger"
	"github.com/jrsteele09/go-session-service/rotation"
)

const contentTypeJSON = "application/json; charset=utf-8"

type createSessionRequest struct {
	UserID         string   `json:"userId"`
	Email          string   `json:"email"`
	OrganizationID string   `json:"organizationId,omitempty"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions,omitempty"`
	Location       string   `json:"location,omitempty"`
}

type rotateRequest struct {
	RefreshToken string `json:"refreshToken"`
	Location     string `json:"location,omitempty"`
}

type revokeFamilyRequest struct {
	Reason string `json:"reason,omitempty"`
}

type countResponse struct {
	RevokedCount int64 `json:"revokedCount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateSessionHandler establishes a session for an identity the upstream
// authenticator has already verified. The response carries the token pair,
// the session snapshot, and the advisory suspicious-activity result.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserID == "" || req.Email == "" || req.Role == "" {
			writeError(w, http.StatusBadRequest, "userId, email and role are required")
			return
		}

		deviceInfo := s.deviceInfoFromRequest(r, req.Location)

		// Advisory only: the check runs against history from before this
		// login and never blocks session creation.
		suspicious := s.detector.Check(r.Context(), req.UserID, deviceInfo)

		result, err := s.engine.CreateSession(r.Context(), rotation.CreateSessionParams{
			UserID:         req.UserID,
			Email:          req.Email,
			OrganizationID: req.OrganizationID,
			Role:           req.Role,
			Permissions:    req.Permissions,
			DeviceInfo:     deviceInfo,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"tokens":             result.Tokens,
			"session":            result.Session,
			"suspiciousActivity": suspicious,
		})
	}
}

func (s *Server) RotateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		pair, err := s.engine.Rotate(r.Context(), req.RefreshToken, s.deviceInfoFromRequest(r, req.Location))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.engine.GetSession(r.Context(), r.PathValue("sessionID"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) SessionActivityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.engine.UpdateSessionActivity(r.Context(), r.PathValue("sessionID"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) RevokeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.RevokeSession(r.Context(), r.PathValue("sessionID")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) UserSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userSessions, err := s.engine.GetUserSessions(r.Context(), r.PathValue("userID"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": userSessions})
	}
}

func (s *Server) RevokeUserSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := s.engine.RevokeAllUserSessions(r.Context(), r.PathValue("userID"), r.URL.Query().Get("except"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{RevokedCount: int64(count)})
	}
}

func (s *Server) RevokeFamilyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeFamilyRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		reason := ledger.ReasonLogoutAll
		if req.Reason != "" {
			reason = ledger.RevokedReason(req.Reason)
		}

		count, err := s.engine.RevokeTokenFamily(r.Context(), r.PathValue("family"), reason)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{RevokedCount: count})
	}
}

func (s *Server) ActivityCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Location string `json:"location,omitempty"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		result := s.detector.Check(r.Context(), r.PathValue("userID"), s.deviceInfoFromRequest(r, req.Location))
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) AdminCleanupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.reaper == nil {
			writeError(w, http.StatusServiceUnavailable, "cleanup not available")
			return
		}
		s.reaper.CleanupExpired(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}
}

// deviceInfoFromRequest assembles the classified DeviceInfo the session core
// consumes. Location comes from the request body when the upstream geo
// lookup supplied one.
func (s *Server) deviceInfoFromRequest(r *http.Request, location string) devices.DeviceInfo {
	userAgent := r.UserAgent()
	device, browser, os := s.classifier.Classify(userAgent)

	return devices.DeviceInfo{
		IPAddress: clientIP(r),
		UserAgent: userAgent,
		Device:    device,
		Browser:   browser,
		OS:        os,
		Location:  location,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First address in the chain is the originating client
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses. Any
// reuse or validity failure forces the client back through full
// authentication, so they all land on 401.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rotation.ErrReuseDetected),
		errors.Is(err, rotation.ErrInvalidToken),
		errors.Is(err, rotation.ErrExpired),
		errors.Is(err, rotation.ErrUnknownToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rotation.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rotation.ErrIssuance), errors.Is(err, rotation.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
