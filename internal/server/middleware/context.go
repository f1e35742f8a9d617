package middleware

import "github.com/gin-gonic/gin"

// Keys under which the bearer middleware stores the caller identity on the gin context.
const (
	ContextKeyUserID     = "user_id"
	ContextKeySessionID  = "session_id"
	ContextKeyIsVerified = "is_verified"
)

// WithIdentity stores user_id, session_id and is_verified on c.
// Handlers read them back with UserID, SessionID and IsVerified.
func WithIdentity(c *gin.Context, userID, sessionID string, isVerified bool) {
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeySessionID, sessionID)
	c.Set(ContextKeyIsVerified, isVerified)
}

// UserID returns the user_id from c and true if set; otherwise "", false.
func UserID(c *gin.Context) (string, bool) {
	v := c.GetString(ContextKeyUserID)
	return v, v != ""
}

// SessionID returns the session_id from c and true if set. Access tokens issued without a session leave it empty.
func SessionID(c *gin.Context) (string, bool) {
	v := c.GetString(ContextKeySessionID)
	return v, v != ""
}

// IsVerified reports the is_verified claim of the caller's access token.
func IsVerified(c *gin.Context) bool {
	return c.GetBool(ContextKeyIsVerified)
}
