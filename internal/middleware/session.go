package middleware

import (
	"net/http"
	"time"

	"github.com/a11ylint/a11ylint-server/internal/config"
)

const SessionMaxAge = config.SessionLifetime

// SessionCookieValue returns the session cookie's value, or "" when absent.
func SessionCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(config.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func SetSessionCookie(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the cookie with both Max-Age and Expires so
// older clients drop it too. Attributes match SetSessionCookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
