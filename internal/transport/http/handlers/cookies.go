package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
)

// RefreshTokenCookie carries the refresh token set at login.
const RefreshTokenCookie = "refreshToken"

const (
	defaultAccessCookieTTL  = 24 * time.Hour
	defaultRefreshCookieTTL = 7 * 24 * time.Hour
)

// CookieOptions controls the session cookies written on login, refresh and registration.
type CookieOptions struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.AccessTTL <= 0 {
		o.AccessTTL = defaultAccessCookieTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = defaultRefreshCookieTTL
	}
	return o
}

// setSessionCookies writes both session cookies. They are httpOnly and SameSite=None so the
// storefront and back-office origins can both send them.
func (o CookieOptions) setSessionCookies(c *gin.Context, session *domain.IssuedSession) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middleware.AccessTokenCookie, session.AccessToken, int(o.AccessTTL.Seconds()), "/", o.Domain, o.Secure, true)
	c.SetCookie(RefreshTokenCookie, session.RefreshToken, int(o.RefreshTTL.Seconds()), "/", o.Domain, o.Secure, true)
}

func (o CookieOptions) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", o.Domain, o.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", o.Domain, o.Secure, true)
}
