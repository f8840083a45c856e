package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/middleware"
)

type profileBody struct {
	User account.Profile `json:"user"`
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req storeauth.SignUpRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.engine.SignUp(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"userId":  res.UserID,
		"message": "Sign up successful, check your email to verify your address",
	})
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req storeauth.SignInRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.engine.SignIn(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	middleware.SetSessionCookie(w, h.engine, res.Session)
	writeJSON(w, http.StatusOK, profileBody{User: res.Profile})
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	var value string
	if c, err := r.Cookie(h.engine.SessionCookieName()); err == nil {
		value = c.Value
	}
	_ = h.engine.SignOut(r.Context(), value)
	middleware.ClearSessionCookie(w, h.engine)
	writeMessage(w, http.StatusOK, "Sign out successful")
}

func (h *handler) oauthRedirect(w http.ResponseWriter, r *http.Request) {
	target, err := h.engine.OAuthRedirect(r.Context(), chi.URLParam(r, "provider"), storeauth.OAuthIntent{
		Redirect: r.URL.Query().Get("redirect"),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// oauthCallback always answers with a redirect to the client application,
// carrying the outcome in the query string.
func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.log.Info("oauth denied by provider", zap.String("error", e))
		h.toClient(w, r, "/auth/signin", url.Values{"error": {"oauth_denied"}})
		return
	}

	res, err := h.engine.OAuthCallback(r.Context(), chi.URLParam(r, "provider"), q.Get("code"), q.Get("state"))
	if err != nil {
		logInternal(r, err)
		h.toClient(w, r, "/auth/signin", url.Values{"error": {storeauth.KindOf(err).String()}, "message": {storeauth.PublicMessage(err)}})
		return
	}

	switch res.Outcome {
	case storeauth.OAuthSignedIn:
		middleware.SetSessionCookie(w, h.engine, res.SignIn.Session)
		h.toClient(w, r, redirectOr(res.Redirect, "/"), nil)
	case storeauth.OAuthMFARequired:
		h.toClient(w, r, "/auth/mfa", url.Values{"challenge": {res.Challenge}})
	case storeauth.OAuthUnlinkedAccountExists:
		h.toClient(w, r, "/auth/signin", url.Values{"error": {"unlinked"}, "email": {res.Email}})
	case storeauth.OAuthConnected:
		h.toClient(w, r, redirectOr(res.Redirect, "/account"), url.Values{"connected": {res.Provider}})
	default:
		h.toClient(w, r, "/auth/signin", url.Values{"error": {"internal"}})
	}
}

func (h *handler) toClient(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	target := strings.TrimRight(h.engine.ClientURL(), "/") + path
	if len(q) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func redirectOr(p, def string) string {
	if p == "" {
		return def
	}
	return p
}

func (h *handler) oauthMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Challenge string `json:"challenge"`
		Code      string `json:"code"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.engine.CompleteOAuthMFA(r.Context(), req.Challenge, req.Code)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	middleware.SetSessionCookie(w, h.engine, res.Session)
	writeJSON(w, http.StatusOK, profileBody{User: res.Profile})
}

func (h *handler) confirmEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verification successful")
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

func (h *handler) recoverAccount(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.RecoverAccount(r.Context(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Check your email to reset your password")
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset")
}

func (h *handler) requestReactivation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.RequestReactivation(r.Context(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Check your email to reactivate your account")
}

func (h *handler) confirmReactivation(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.ReActivateAccount(r.Context(), req.Token); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your account has been reactivated")
}
