package httpapi

import (
	"net/http"

	"identity-sessions/internal/apperr"
	"identity-sessions/internal/metrics"
	"identity-sessions/internal/session/service"
)

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.Register(r.Context(), req.Login, req.Email, req.Password); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegistrationConfirmation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.ConfirmRegistration(r.Context(), req.Code); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEmailResending(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.ResendConfirmation(r.Context(), req.Email); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoginOrEmail string `json:"loginOrEmail"`
		Password     string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	issued, err := h.lifecycle.Login(r.Context(), req.LoginOrEmail, req.Password, service.ClientContext{
		IP:        realIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.metrics.LoginAttempts.WithLabelValues(resultLabel(err)).Inc()
		writeError(w, h.log, err)
		return
	}
	h.metrics.LoginAttempts.WithLabelValues(metrics.ResultOK).Inc()
	setRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": issued.AccessToken})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	issued, _, err := h.lifecycle.Refresh(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		h.metrics.TokenRotations.WithLabelValues(resultLabel(err)).Inc()
		writeError(w, h.log, err)
		return
	}
	h.metrics.TokenRotations.WithLabelValues(metrics.ResultOK).Inc()
	setRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": issued.AccessToken})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Logout(r.Context(), refreshTokenFromRequest(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.metrics.SessionsRevoked.WithLabelValues(metrics.ScopeLogout).Inc()
	clearRefreshCookie(w, h.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.RecoverPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNewPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword  string `json:"newPassword"`
		RecoveryCode string `json:"recoveryCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.SetNewPassword(r.Context(), req.RecoveryCode, req.NewPassword); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	profile, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":  profile.Email,
		"login":  profile.Login,
		"userId": profile.UserID,
	})
}

func resultLabel(err error) string {
	if _, ok := apperr.As(err); ok {
		return metrics.ResultRejected
	}
	return metrics.ResultError
}
