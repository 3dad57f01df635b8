package relay

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Paths the session middleware never runs on: static assets, image
// optimization output, the favicon, and the API surface (API handlers run
// their own relay cycle).
var skipPrefixes = []string{
	"/static/",
	"/assets/",
	"/images/",
	"/api/",
}

const faviconPath = "/favicon.ico"

func skipPath(path string) bool {
	if path == faviconPath {
		return true
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware runs the relay-then-guard cycle on every navigation request.
//
// Allowed navigations continue with the refreshed cookie view on the
// request, the store's cookie writes staged on the response, and the
// resolved user in the request context. Redirects carry the same cookie
// writes; a refreshed session must not be lost just because the navigation
// bounced.
func Middleware(rl *Relay, guard *Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipPath(path) {
			c.Next()
			return
		}

		fwd, user := rl.Refresh(c.Request)
		c.Request = fwd.Request()
		fwd.Apply(c.Writer)

		decision := guard.Decide(path, user)
		if !decision.Allow {
			c.Redirect(http.StatusTemporaryRedirect, decision.RedirectURL)
			c.Abort()
			return
		}

		if user != nil {
			c.Request = c.Request.WithContext(WithUser(c.Request.Context(), user))
		}
		c.Next()
	}
}
