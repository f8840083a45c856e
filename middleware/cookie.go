package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/storeauth"
)

// SetSessionCookie writes the encrypted session id issued by a sign-in.
func SetSessionCookie(w http.ResponseWriter, engine *storeauth.Engine, s storeauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     engine.SessionCookieName(),
		Value:    s.Cookie,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(engine.SessionLifetime() / time.Second),
		HttpOnly: true,
		Secure:   engine.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, engine *storeauth.Engine) {
	http.SetCookie(w, &http.Cookie{
		Name:     engine.SessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   engine.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}
