package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-service/activity"
	"github.com/jrsteele09/go-session-service/devices"
	"github.com/jrsteele09/go-session-service/internal/config"
	"github.com/jrsteele09/go-session-service/reaper"
	"github.com/jrsteele09/go-session-service/rotation"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	engine     *rotation.Engine
	detector   *activity.Detector
	reaper     *reaper.Reaper
	classifier devices.Classifier
}

func New(cfg config.Config, engine *rotation.Engine, detector *activity.Detector, sweeper *reaper.Reaper) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("[Server New] rotation engine is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("[Server New] activity detector is required")
	}

	s := &Server{
		mux:        http.NewServeMux(),
		config:     cfg,
		engine:     engine,
		detector:   detector,
		reaper:     sweeper,
		classifier: devices.NewUserAgentClassifier(),
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteSessions, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteSessionByID, ChainMiddleware(s.GetSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteSessionActivity, ChainMiddleware(s.SessionActivityHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("DELETE "+RouteSessionByID, ChainMiddleware(s.RevokeSessionHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteUserSessions, ChainMiddleware(s.UserSessionsHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("DELETE "+RouteUserSessions, ChainMiddleware(s.RevokeUserSessionsHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("POST "+RouteTokenRotate, ChainMiddleware(s.RotateHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteFamilyRevoke, ChainMiddleware(s.RevokeFamilyHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("POST "+RouteActivityCheck, ChainMiddleware(s.ActivityCheckHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("POST "+RouteAdminCleanup, ChainMiddleware(s.AdminCleanupHandler(), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
