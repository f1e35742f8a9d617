package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/server/response"
	sessiondomain "resume-builder/backend/internal/session/domain"
)

const (
	bearerPrefix     = "bearer "
	AdminTokenHeader = "X-Admin-Token"
)

// AccessValidator verifies an access token and, for session-bound tokens, that the session is still active.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, rawAccessToken string) (*security.Claims, error)
}

// Bearer returns a middleware that validates the Bearer access token and sets user_id, session_id and
// is_verified on the context. Every credential failure is the same 401; a validator that cannot
// reach its session store yields a 500.
func Bearer(v AccessValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c)
			return
		}
		claims, err := v.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			if !isCredentialError(err) {
				response.InternalError(c, log, err)
				return
			}
			log.Debug("access token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			response.Unauthorized(c)
			return
		}
		WithIdentity(c, claims.UserID(), claims.SessionID, claims.IsVerified)
		c.Next()
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, security.ErrTokenInvalid) ||
		errors.Is(err, security.ErrTokenExpired) ||
		errors.Is(err, security.ErrWrongTokenType) ||
		errors.Is(err, sessiondomain.ErrSessionRevoked) ||
		errors.Is(err, sessiondomain.ErrSessionExpired)
}

// AdminToken returns a middleware that requires the X-Admin-Token header to equal token.
// An empty token disables the guarded routes entirely.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.NotFound(c, "not found")
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.Forbidden(c, "admin token required")
			return
		}
		c.Next()
	}
}

// extractBearer returns the token of an Authorization header, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
