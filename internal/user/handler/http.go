// Package handler serves the signed-in user's profile.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-builder/backend/internal/server/middleware"
	"resume-builder/backend/internal/server/response"
	"resume-builder/backend/internal/user/domain"
)

// UserFinder looks users up by ID. Missing users are (nil, nil).
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Handler serves /me.
type Handler struct {
	users UserFinder
	log   *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(users UserFinder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{users: users, log: log.Named("user-http")}
}

// RegisterRoutes mounts /me on rg behind authMW.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/me", authMW, h.me)
}

type userJSON struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Name       string            `json:"name"`
	IsVerified bool              `json:"isVerified"`
	Status     domain.UserStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	SessionID  string            `json:"sessionId,omitempty"`
}

func (h *Handler) me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	u, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	// A valid token for a deleted user is treated like any other dead session.
	if u == nil {
		response.Unauthorized(c)
		return
	}
	sessionID, _ := middleware.SessionID(c)
	response.OK(c, userJSON{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsVerified: u.IsVerified,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		SessionID:  sessionID,
	})
}
