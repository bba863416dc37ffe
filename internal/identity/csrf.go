package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CSRFMiddleware enforces double-submit CSRF protection on state-changing
// requests. The :id path parameter, when present, must match the session
// cookie so one browser cannot drive another's wizard.
func (g *Guard) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requiresCSRFCheck(c.Request.Method) {
			c.Next()
			return
		}
		headerToken := c.GetHeader(g.csrfHeaderName)
		cookieToken, err := c.Cookie(g.csrfCookieName)
		if err != nil || headerToken == "" || cookieToken == "" || headerToken != cookieToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		if id := c.Param("id"); id != "" {
			sessionID, err := c.Cookie(g.sessionCookieName)
			if err != nil || sessionID != id {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "session mismatch"})
				return
			}
		}
		c.Next()
	}
}

func requiresCSRFCheck(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
