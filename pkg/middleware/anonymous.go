package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnonCookieName is the long-lived anonymous identity cookie. It is the join
// key for all entitlement state; there are no authenticated accounts.
const AnonCookieName = "ccp_anon"

const anonCookieMaxAge = 365 * 24 * 60 * 60 // one year

const identityKey = "anonymousID"

// AnonymousIdentity reads the anonymous identity cookie, minting a new UUID
// cookie when absent, and stores the identity on the request context. Cookie
// assignment is best-effort: requests without a usable identity still pass
// through with an empty identity (the entitlement gate degrades open).
func AnonymousIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(AnonCookieName)
		if err != nil || id == "" {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(AnonCookieName, id, anonCookieMaxAge, "/", "", false, false)
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the anonymous identity for the request, or "" when the
// middleware did not run.
func IdentityFrom(c *gin.Context) string {
	if v, ok := c.Get(identityKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
