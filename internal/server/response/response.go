// Package response writes the JSON envelopes shared by every HTTP handler.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MsgInvalidSession is the single message for every authentication failure, so a caller cannot tell
// a revoked session from an expired or forged token.
const MsgInvalidSession = "invalid or expired session"

// Error is the body of every non-2xx response.
type Error struct {
	OK      int    `json:"ok"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 response.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail aborts with status and message.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Error{OK: 0, Code: status, Message: message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// Unauthorized sends the uniform 401.
func Unauthorized(c *gin.Context) {
	Fail(c, http.StatusUnauthorized, MsgInvalidSession)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	Fail(c, http.StatusConflict, message)
}

// Unavailable sends a 503 error response.
func Unavailable(c *gin.Context, message string) {
	Fail(c, http.StatusServiceUnavailable, message)
}

// InternalError logs err and sends a 500 without leaking it.
func InternalError(c *gin.Context, log *zap.Logger, err error) {
	if log != nil {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	Fail(c, http.StatusInternalServerError, "internal error")
}
