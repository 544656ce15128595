package auth

import (
	"net/http"
	"time"
)

// Cookie names for the two session credentials
const (
	AccessCookieName  = "crewdesk_access"
	RefreshCookieName = "crewdesk_refresh"
)

// RefreshCookiePath restricts the refresh cookie so browsers only attach it
// to the refresh endpoint
const RefreshCookiePath = "/api/auth/refresh"

// CookieManager writes and clears session cookies. Both cookies are
// http-only with SameSite=Strict; the refresh cookie is path-restricted.
type CookieManager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCookieManager creates a cookie manager. secure controls the Secure
// attribute and should only be false in local development.
func NewCookieManager(secure bool, accessTTL, refreshTTL time.Duration) *CookieManager {
	return &CookieManager{
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// SetSessionCookies writes both session cookies after login or registration
func (c *CookieManager) SetSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	c.SetAccessCookie(w, accessToken)
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     RefreshCookiePath,
		MaxAge:   int(c.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// SetAccessCookie writes only the access cookie; used by the refresh
// endpoint, which does not rotate the refresh credential
func (c *CookieManager) SetAccessCookie(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(c.accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookies expires both cookies by name and path
func (c *CookieManager) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
