package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session lifecycle
	RouteSessions        = "/v1/sessions"
	RouteSessionByID     = "/v1/sessions/{sessionID}"
	RouteSessionActivity = "/v1/sessions/{sessionID}/activity"

	// Per-user session management
	RouteUserSessions = "/v1/users/{userID}/sessions"

	// Token rotation & family revocation
	RouteTokenRotate  = "/v1/tokens/rotate"
	RouteFamilyRevoke = "/v1/families/{family}/revoke"

	// Advisory heuristics
	RouteActivityCheck = "/v1/users/{userID}/activity-check"

	// Admin
	RouteAdminCleanup = "/v1/admin/cleanup"
)
