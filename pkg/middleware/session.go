package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/newsinsight/docservice/pkg/logger"
)

const (
	// SessionCookie carries the opaque session id issued by the account service.
	SessionCookie = "session_id"
	uploaderKey   = "uploaderId"
)

// SessionLookup resolves a session id to an account id. It returns
// (0, false, nil) for unknown or expired sessions.
type SessionLookup interface {
	AccountID(ctx context.Context, sessionID string) (int64, bool, error)
}

// SessionMiddleware attaches the caller's account id to the context. Requests
// without a valid session continue as the anonymous uploader.
func SessionMiddleware(lookup SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lookup == nil {
			c.Next()
			return
		}
		sid, err := c.Cookie(SessionCookie)
		if err != nil || sid == "" {
			c.Next()
			return
		}
		id, ok, err := lookup.AccountID(c.Request.Context(), sid)
		if err != nil {
			logger.Warnf("session lookup failed, continuing anonymously: %v", err)
		} else if ok {
			c.Set(uploaderKey, id)
		}
		c.Next()
	}
}

// UploaderID returns the account id set by SessionMiddleware, or 0 (anonymous).
func UploaderID(c *gin.Context) int64 {
	if v, ok := c.Get(uploaderKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
