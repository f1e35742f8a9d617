// Package server assembles the HTTP router from the feature handlers.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	healthhandler "resume-builder/backend/internal/health/handler"
	identityhandler "resume-builder/backend/internal/identity/handler"
	"resume-builder/backend/internal/server/middleware"
	sessionhandler "resume-builder/backend/internal/session/handler"
	userhandler "resume-builder/backend/internal/user/handler"
)

// SessionService is what the router needs from the session service: the session routes, refresh
// redemption and access token validation for the bearer middleware.
type SessionService interface {
	sessionhandler.Service
	identityhandler.Redeemer
	middleware.AccessValidator
}

// Deps holds the services mounted by NewRouter. Auth, Sessions and Users are required.
type Deps struct {
	Auth     identityhandler.AuthService
	Sessions SessionService
	Users    userhandler.UserFinder
	// HealthDB is pinged by /healthz (e.g. *pgxpool.Pool). If nil, the database check is skipped.
	HealthDB healthhandler.Pinger
	// HealthPolicy is checked by /healthz (e.g. the OPA evaluator). If nil, the policy check is skipped.
	HealthPolicy healthhandler.PolicyChecker
	// HealthExtra names optional dependency checks such as "redis".
	HealthExtra map[string]healthhandler.Pinger
	// AdminToken guards /v1/admin and the OAuth hand-off. Empty disables both.
	AdminToken string
	Logger     *zap.Logger
}

// NewRouter returns the gin engine serving /healthz and /v1.
//
// Route -> handler mapping:
//   - /healthz          -> internal/health/handler
//   - /v1/auth/*        -> internal/identity/handler
//   - /v1/me            -> internal/user/handler
//   - /v1/sessions/*    -> internal/session/handler
//   - /v1/admin/*       -> internal/session/handler (admin routes)
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog(log, map[string]bool{"/healthz": true}))

	healthhandler.NewHandler(deps.HealthDB, deps.HealthPolicy, deps.HealthExtra, log).RegisterRoutes(r)

	authMW := middleware.Bearer(deps.Sessions, log)
	adminMW := middleware.AdminToken(deps.AdminToken)

	v1 := r.Group("/v1")
	identityhandler.NewHandler(deps.Auth, deps.Sessions, log).RegisterRoutes(v1, authMW, adminMW)
	userhandler.NewHandler(deps.Users, log).RegisterRoutes(v1, authMW)

	sessions := sessionhandler.NewHandler(deps.Sessions, log)
	sessions.RegisterRoutes(v1, authMW)
	sessions.RegisterAdminRoutes(v1.Group("/admin", adminMW, middleware.AdminAudit(log)))

	return r
}
