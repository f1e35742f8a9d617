// Package handler exposes session management over HTTP: the caller's own devices and the admin tooling.
package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-builder/backend/internal/policy/engine"
	"resume-builder/backend/internal/server/middleware"
	"resume-builder/backend/internal/server/response"
	"resume-builder/backend/internal/session/cleanup"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/session/service"
)

// SessionTokenHeader carries the opaque session token for GET /sessions/current.
const SessionTokenHeader = "X-Session-Token"

// Service is the session lifecycle surface used by the handler.
type Service interface {
	ListActiveSessions(ctx context.Context, userID, currentSessionID string) ([]service.SessionView, error)
	GetSessionStats(ctx context.Context, userID string) (*domain.Stats, error)
	CheckSuspicious(ctx context.Context, userID string, windowHours int) ([]*domain.Session, error)
	SessionByToken(ctx context.Context, token string) (*domain.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) (bool, error)
	RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error)

	ListSessions(ctx context.Context, f domain.Filter) (*domain.Page, error)
	AdminRevokeSession(ctx context.Context, sessionID string) (bool, error)
	AdminRevokeAllForUser(ctx context.Context, userID string) (int64, error)
	CheckAndAlert(ctx context.Context, userID string, windowHours int) ([]*domain.Session, engine.AlertDecision, error)
	RunCleanupOnce(ctx context.Context) (domain.CleanupResult, error)
	CleanupStatus() (cleanup.Status, error)
}

// Handler serves /sessions and /admin/sessions.
type Handler struct {
	svc  Service
	log  *zap.Logger
	nowF func() time.Time
}

// NewHandler returns a Handler over svc.
func NewHandler(svc Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log.Named("session-http"), nowF: time.Now}
}

// RegisterRoutes mounts the caller-facing routes on rg behind authMW.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	s := rg.Group("/sessions", authMW)
	s.GET("", h.list)
	s.GET("/stats", h.stats)
	s.GET("/suspicious", h.suspicious)
	s.GET("/current", h.current)
	s.POST("/revoke-others", h.revokeOthers)
	s.DELETE("/:id", h.revoke)
}

// RegisterAdminRoutes mounts the admin routes on rg, which must already be guarded.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.adminList)
	rg.DELETE("/sessions/:id", h.adminRevoke)
	rg.DELETE("/users/:userId/sessions", h.adminRevokeUser)
	rg.POST("/users/:userId/suspicious-check", h.adminSuspiciousCheck)
	rg.POST("/cleanup", h.runCleanup)
	rg.GET("/cleanup", h.cleanupStatus)
}

func (h *Handler) now() time.Time { return h.nowF().UTC() }

// filterParams are the query parameters that switch GET /sessions to a filtered page.
var filterParams = []string{"status", "deviceType", "location", "createdFrom", "createdTo", "limit", "offset"}

func (h *Handler) list(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	current, _ := middleware.SessionID(c)
	for _, p := range filterParams {
		if _, ok := c.GetQuery(p); ok {
			h.listFiltered(c, userID, current)
			return
		}
	}
	views, err := h.svc.ListActiveSessions(c.Request.Context(), userID, current)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	now := h.now()
	out := make([]sessionJSON, 0, len(views))
	for _, v := range views {
		j := toJSON(v.Session, now, false)
		j.IsCurrent = v.IsCurrent
		out = append(out, j)
	}
	response.OK(c, gin.H{"sessions": out})
}

// listFiltered pages through the caller's sessions in any status. A userId parameter is ignored.
func (h *Handler) listFiltered(c *gin.Context, userID, current string) {
	if userID == "" {
		response.Unauthorized(c)
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	f.UserID = userID
	page, err := h.svc.ListSessions(c.Request.Context(), f)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	now := h.now()
	out := make([]sessionJSON, 0, len(page.Sessions))
	for _, sess := range page.Sessions {
		j := toJSON(sess, now, false)
		j.IsCurrent = current != "" && sess.ID == current
		out = append(out, j)
	}
	response.OK(c, gin.H{
		"sessions": out,
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func (h *Handler) stats(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	st, err := h.svc.GetSessionStats(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, st)
}

func (h *Handler) suspicious(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	window, ok := windowHours(c)
	if !ok {
		return
	}
	flagged, err := h.svc.CheckSuspicious(c.Request.Context(), userID, window)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"sessions": toJSONList(flagged, h.now(), false), "suspicious": len(flagged) > 0})
}

func (h *Handler) current(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	token := c.GetHeader(SessionTokenHeader)
	if token == "" {
		response.BadRequest(c, SessionTokenHeader+" header required")
		return
	}
	sess, err := h.svc.SessionByToken(c.Request.Context(), token)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && sess.UserID != userID) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	current, _ := middleware.SessionID(c)
	j := toJSON(sess, h.now(), false)
	j.IsCurrent = sess.ID == current
	response.OK(c, j)
}

func (h *Handler) revoke(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	revoked, err := h.svc.RevokeSession(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"revoked": revoked})
}

func (h *Handler) revokeOthers(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	current, ok := middleware.SessionID(c)
	if !ok {
		response.BadRequest(c, "access token is not bound to a session")
		return
	}
	n, err := h.svc.RevokeOtherSessions(c.Request.Context(), userID, current)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"revoked": n})
}

func (h *Handler) adminList(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.svc.ListSessions(c.Request.Context(), f)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"sessions": toJSONList(page.Sessions, h.now(), true),
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func (h *Handler) adminRevoke(c *gin.Context) {
	revoked, err := h.svc.AdminRevokeSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"revoked": revoked})
}

func (h *Handler) adminRevokeUser(c *gin.Context) {
	n, err := h.svc.AdminRevokeAllForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{"revoked": n})
}

func (h *Handler) adminSuspiciousCheck(c *gin.Context) {
	window, ok := windowHours(c)
	if !ok {
		return
	}
	flagged, decision, err := h.svc.CheckAndAlert(c.Request.Context(), c.Param("userId"), window)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, gin.H{
		"sessions": toJSONList(flagged, h.now(), true),
		"notified": decision.Notify,
		"severity": decision.Severity,
	})
}

func (h *Handler) runCleanup(c *gin.Context) {
	res, err := h.svc.RunCleanupOnce(c.Request.Context())
	if errors.Is(err, service.ErrCleanupUnavailable) {
		response.Unavailable(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) cleanupStatus(c *gin.Context) {
	st, err := h.svc.CleanupStatus()
	if errors.Is(err, service.ErrCleanupUnavailable) {
		response.Unavailable(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, cleanupStatusToJSON(st))
}

// windowHours reads the optional windowHours query parameter; 0 selects the configured window.
func windowHours(c *gin.Context) (int, bool) {
	raw := c.Query("windowHours")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 24*30 {
		response.BadRequest(c, "windowHours must be between 1 and 720")
		return 0, false
	}
	return n, true
}

func parseFilter(c *gin.Context) (domain.Filter, error) {
	status, err := domain.ParseStatus(c.Query("status"))
	if err != nil {
		return domain.Filter{}, err
	}
	f := domain.Filter{
		UserID:     c.Query("userId"),
		Status:     status,
		DeviceType: c.Query("deviceType"),
		Location:   c.Query("location"),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"createdFrom", &f.CreatedFrom}, {"createdTo", &f.CreatedTo}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Filter{}, errors.New(p.name + " must be RFC 3339")
		}
		*p.dst = &t
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.Filter{}, errors.New(p.name + " must be a non-negative integer")
		}
		*p.dst = n
	}
	return f.Normalized(), nil
}
