package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/middleware"
)

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, profileBody{User: identity(r).Profile})
}

func (h *handler) editProfile(w http.ResponseWriter, r *http.Request) {
	var req storeauth.EditProfileRequest
	if !readJSON(w, r, &req) {
		return
	}
	profile, err := h.engine.EditProfile(r.Context(), identity(r).UserID(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string          `json:"message"`
		User    account.Profile `json:"user"`
	}{"Update profile success", profile})
}

func (h *handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Disactivate(r.Context(), identity(r).UserID()); err != nil {
		WriteError(w, r, err)
		return
	}
	middleware.ClearSessionCookie(w, h.engine)
	writeMessage(w, http.StatusOK, "Your account has been deactivated")
}

func (h *handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResendVerification(r.Context(), identity(r).UserID()); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification email sent")
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	id := identity(r)
	if err := h.engine.ChangePassword(r.Context(), id.UserID(), id.SessionID, req.OldPassword, req.NewPassword); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been changed")
}

func (h *handler) createPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.CreatePassword(r.Context(), identity(r).UserID(), req.Password); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been created")
}

func (h *handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.ChangeEmail(r.Context(), identity(r).UserID(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email has been changed, check your inbox to verify it")
}

type mfaCodesRequest struct {
	Code1 string `json:"code1"`
	Code2 string `json:"code2"`
}

func (h *handler) setupMFA(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.SetupMFA(r.Context(), identity(r).UserID())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) enableMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodesRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.EnableMFA(r.Context(), identity(r).UserID(), req.Code1, req.Code2); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Multi-factor authentication (MFA) has been enabled")
}

func (h *handler) disableMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodesRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.DisableMFA(r.Context(), identity(r).UserID(), req.Code1, req.Code2); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Multi-factor authentication (MFA) has been disabled")
}

func (h *handler) connectOAuth(w http.ResponseWriter, r *http.Request) {
	target, err := h.engine.ConnectOAuth(r.Context(), identity(r).UserID(), chi.URLParam(r, "provider"), r.URL.Query().Get("redirect"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *handler) disconnectOAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider   string `json:"provider"`
		ProviderID string `json:"providerId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.engine.DisconnectOAuth(r.Context(), identity(r).UserID(), req.Provider, req.ProviderID); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "OAuth connection removed")
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	sessions, err := h.engine.ListSessions(r.Context(), id.UserID(), id.SessionID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []storeauth.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *handler) signOutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignOutAll(r.Context(), identity(r).UserID()); err != nil {
		WriteError(w, r, err)
		return
	}
	middleware.ClearSessionCookie(w, h.engine)
	writeMessage(w, http.StatusOK, "Signed out of all devices")
}

func (h *handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RevokeSession(r.Context(), identity(r).UserID(), chi.URLParam(r, "handle")); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Session revoked")
}

func (h *handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	status, err := account.ParseStatus(req.Status)
	if err != nil {
		WriteError(w, r, storeauth.ErrInvalidStatus)
		return
	}
	if err := h.engine.SetStatus(r.Context(), identity(r).Profile.Role, chi.URLParam(r, "id"), status); err != nil {
		WriteError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account status updated")
}
