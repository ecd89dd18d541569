package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const AuthCookieName = "auth_token"

// CookieSettings controls how the auth cookie is scoped.
type CookieSettings struct {
	Production bool
	Domain     string
}

// SetAuthCookie stores token in the auth cookie until expiresAt.
func SetAuthCookie(c *gin.Context, cs CookieSettings, token string, expiresAt time.Time) {
	domain := cs.Domain
	// For production, don't set domain to allow cross-origin cookies
	if cs.Production {
		domain = ""
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   domain,
		Secure:   cs.Production,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func ClearAuthCookie(c *gin.Context, cs CookieSettings) {
	domain := cs.Domain
	if cs.Production {
		domain = ""
	}
	c.SetCookie(AuthCookieName, "", -1, "/", domain, cs.Production, true)
}
