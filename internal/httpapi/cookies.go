package httpapi

import (
	"net/http"
	"time"
)

const refreshCookieName = "refreshToken"

// setRefreshCookie binds the refresh token to the client. The cookie is
// HttpOnly and SameSite strict; Secure is off only outside production so
// plain-HTTP development setups keep working.
func setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFromRequest pulls the refresh token cookie; empty when absent.
func refreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
