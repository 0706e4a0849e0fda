package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"porter/internal/access"
	"porter/internal/domain"
	"porter/internal/service"
)

// userContextKey is the gin context key holding the admitted domain.User.
const userContextKey = "sessionUser"

// SessionReader is the part of the session manager the gate reads.
type SessionReader interface {
	Snapshot() domain.Session
	Pending() *service.Verification
}

// AccessGate admits requests only for a verified session. While the startup
// verification is still running it waits up to maxWait for the outcome before
// deciding, so a restored session is not bounced to the login view.
func AccessGate(sessions SessionReader, maxWait time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if access.Public(c.Request.URL.Path) {
			c.Next()
			return
		}

		if v := sessions.Pending(); v != nil && maxWait > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), maxWait)
			_, _ = v.Wait(ctx)
			cancel()
		}

		session := sessions.Snapshot()
		decision := access.Admit(session)
		if !decision.Admit {
			code := http.StatusFound
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				code = http.StatusSeeOther
			}
			c.Redirect(code, decision.RedirectTo)
			c.Abort()
			return
		}

		c.Set(userContextKey, *session.User)
		c.Next()
	}
}

// CurrentUser returns the user admitted by AccessGate.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := v.(domain.User)
	return user, ok
}
