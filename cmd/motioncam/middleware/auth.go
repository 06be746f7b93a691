package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionUserKey is the session field set by a successful login.
const SessionUserKey = "user"

// RequireLogin lets a request through only when its session carries a user.
// The dashboard's /data poller asks for JSON and gets a bare 401 it can act on;
// browsers are sent to loginPath.
func RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions.Default(c).Get(SessionUserKey) != nil {
			c.Next()
			return
		}
		if wantsJSON(c.GetHeader("Accept")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Redirect(http.StatusFound, loginPath)
		c.Abort()
	}
}

func wantsJSON(accept string) bool {
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
