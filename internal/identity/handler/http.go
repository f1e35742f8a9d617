// Package handler exposes the login surfaces over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	identitydomain "resume-builder/backend/internal/identity/domain"
	identityservice "resume-builder/backend/internal/identity/service"
	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/server/middleware"
	"resume-builder/backend/internal/server/response"
	sessiondomain "resume-builder/backend/internal/session/domain"
	sessionhandler "resume-builder/backend/internal/session/handler"
	sessionservice "resume-builder/backend/internal/session/service"
)

// AuthService is the identity surface used by the handler.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*identityservice.AuthResult, error)
	Login(ctx context.Context, email, password string, client sessiondomain.Client) (*identityservice.AuthResult, error)
	OAuthLogin(ctx context.Context, ext identitydomain.ExternalIdentity, client sessiondomain.Client) (*identityservice.AuthResult, error)
	ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) (int64, error)
	Logout(ctx context.Context, userID, sessionID string) error
}

// Redeemer exchanges refresh tokens for session-bound access tokens.
type Redeemer interface {
	Redeem(ctx context.Context, rawRefreshToken string, client sessiondomain.Client) (*sessionservice.RedeemResult, error)
}

// Handler serves /auth.
type Handler struct {
	auth     AuthService
	sessions Redeemer
	log      *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(auth AuthService, sessions Redeemer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, sessions: sessions, log: log.Named("auth-http")}
}

// RegisterRoutes mounts /auth on rg. authMW guards logout and password change; oauthMW guards the
// OAuth hand-off, which only the trusted OAuth callback may call.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, oauthMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.POST("/refresh", h.refresh)
	a.POST("/oauth", oauthMW, h.oauth)
	a.POST("/logout", authMW, h.logout)
	a.POST("/password", authMW, h.changePassword)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string                    `json:"email" binding:"required"`
	Password string                    `json:"password" binding:"required"`
	Client   sessionhandler.ClientInfo `json:"client"`
}

type oauthRequest struct {
	Provider   string                    `json:"provider" binding:"required"`
	ExternalID string                    `json:"externalId" binding:"required"`
	Email      string                    `json:"email" binding:"required"`
	Profile    identitydomain.Profile    `json:"profile"`
	Client     sessionhandler.ClientInfo `json:"client"`
}

type refreshRequest struct {
	RefreshToken string                    `json:"refreshToken" binding:"required"`
	Client       sessionhandler.ClientInfo `json:"client"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type authResponse struct {
	UserID           string    `json:"userId"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	SessionID        string    `json:"sessionId"`
	SessionToken     string    `json:"sessionToken,omitempty"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
	NewUser          bool      `json:"newUser,omitempty"`
}

type refreshResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	SessionID       string    `json:"sessionId"`
	ExpiresAt       time.Time `json:"expiresAt"`
	SessionToken    string    `json:"sessionToken,omitempty"`
}

func toAuthResponse(r *identityservice.AuthResult) authResponse {
	return authResponse{
		UserID:           r.UserID,
		AccessToken:      r.AccessToken,
		AccessExpiresAt:  r.AccessExpiresAt,
		RefreshToken:     r.RefreshToken,
		RefreshExpiresAt: r.RefreshExpiresAt,
		SessionID:        r.SessionID,
		SessionToken:     r.SessionToken,
		SessionExpiresAt: r.SessionExpiresAt,
		NewUser:          r.NewUser,
	}
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, identityservice.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
		response.Conflict(c, err.Error())
	case err != nil:
		response.InternalError(c, h.log, err)
	default:
		response.Created(c, gin.H{"userId": res.UserID})
	}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.Client.Client(c))
	if errors.Is(err, identityservice.ErrInvalidCredentials) {
		response.Fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, toAuthResponse(res))
}

func (h *Handler) oauth(c *gin.Context) {
	var req oauthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ext := identitydomain.ExternalIdentity{
		Provider:   identitydomain.IdentityProvider(req.Provider),
		ExternalID: req.ExternalID,
		Email:      req.Email,
		Profile:    req.Profile,
	}
	res, err := h.auth.OAuthLogin(c.Request.Context(), ext, req.Client.Client(c))
	switch {
	case errors.Is(err, identityservice.ErrInvalidOAuthIdentity):
		response.BadRequest(c, err.Error())
	case errors.Is(err, identityservice.ErrInvalidCredentials):
		response.Forbidden(c, "account disabled")
	case err != nil:
		response.InternalError(c, h.log, err)
	default:
		response.OK(c, toAuthResponse(res))
	}
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.sessions.Redeem(c.Request.Context(), req.RefreshToken, req.Client.Client(c))
	if err != nil {
		if isAuthFailure(err) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, h.log, err)
		return
	}
	response.OK(c, refreshResponse{
		AccessToken:     res.AccessToken,
		AccessExpiresAt: res.AccessExpiresAt,
		SessionID:       res.SessionID,
		ExpiresAt:       res.ExpiresAt,
		SessionToken:    res.SessionToken,
	})
}

func (h *Handler) logout(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	sessionID, _ := middleware.SessionID(c)
	if err := h.auth.Logout(c.Request.Context(), userID, sessionID); err != nil {
		response.InternalError(c, h.log, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID, _ := middleware.UserID(c)
	sessionID, _ := middleware.SessionID(c)
	n, err := h.auth.ChangePassword(c.Request.Context(), userID, sessionID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, identityservice.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, identityservice.ErrInvalidCredentials):
		response.Forbidden(c, "current password is incorrect")
	case err != nil:
		response.InternalError(c, h.log, err)
	default:
		response.OK(c, gin.H{"sessionsRevoked": n})
	}
}

// isAuthFailure reports whether a redeem error means the caller must sign in again.
func isAuthFailure(err error) bool {
	for _, target := range []error{
		security.ErrTokenInvalid,
		security.ErrTokenExpired,
		security.ErrWrongTokenType,
		sessiondomain.ErrSessionRevoked,
		sessiondomain.ErrSessionExpired,
		sessionservice.ErrUserNotFound,
		sessionservice.ErrUserDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
