// Package handler serves the readiness probe.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the alert policy is loaded and evaluable (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a plain function to Pinger.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves GET /healthz. Nil dependencies are skipped.
type Handler struct {
	db     Pinger
	policy PolicyChecker
	extra  map[string]Pinger
	log    *zap.Logger
}

// NewHandler returns a Handler. extra names additional optional dependencies (e.g. "redis").
func NewHandler(db Pinger, policy PolicyChecker, extra map[string]Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{db: db, policy: policy, extra: extra, log: log.Named("health")}
}

// RegisterRoutes mounts /healthz on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.healthz)
}

func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	run := func(name string, check func(context.Context) error) {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "fail"
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if h.db != nil {
		run("database", h.db.Ping)
	}
	if h.policy != nil {
		run("policy", h.policy.HealthCheck)
	}
	for name, p := range h.extra {
		if p != nil {
			run(name, p.Ping)
		}
	}

	status, code := "serving", http.StatusOK
	if !healthy {
		status, code = "not_serving", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}
