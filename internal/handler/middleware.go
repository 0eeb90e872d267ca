package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHeader carries the visitor's session id. Clients generate one and
// send it on every request; when absent the server assigns one and echoes it
// back so the client can adopt it.
const SessionHeader = "X-Probable-Session"

const sessionContextKey = "probable.session"

// SessionMiddleware resolves the visitor session id for the request.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(sessionContextKey, id)
		c.Writer.Header().Set(SessionHeader, id)
		c.Next()
	}
}

// SessionID returns the visitor session id resolved by SessionMiddleware.
func SessionID(c *gin.Context) string {
	if id, ok := c.Get(sessionContextKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
