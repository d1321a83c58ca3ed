package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Connectivity reports whether the chain provider is reachable.
type Connectivity interface {
	Connected() bool
}

// RequireConnected refuses mutating requests while the provider is down.
// Reads go through so views can report their disconnected status.
func RequireConnected(conn Connectivity) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !conn.Connected() {
			Abort(c, http.StatusServiceUnavailable, "chain provider unavailable")
			return
		}
		c.Next()
	}
}
