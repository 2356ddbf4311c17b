package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"identity-sessions/internal/metrics"
)

type deviceResponse struct {
	IP             string `json:"ip"`
	Title          string `json:"title"`
	LastActiveDate string `json:"lastActiveDate"`
	DeviceID       string `json:"deviceId"`
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.lifecycle.Authenticate(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	views, err := h.devices.ListActiveDevices(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]deviceResponse, 0, len(views))
	for _, v := range views {
		out = append(out, deviceResponse{
			IP:             v.IP,
			Title:          v.Title,
			LastActiveDate: v.LastActiveAt.UTC().Format(time.RFC3339),
			DeviceID:       v.DeviceID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRevokeOtherDevices(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.RevokeOtherDevices(r.Context(), refreshTokenFromRequest(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.metrics.SessionsRevoked.WithLabelValues(metrics.ScopeOthers).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.lifecycle.Authenticate(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.lifecycle.RevokeDevice(r.Context(), userID, chi.URLParam(r, "deviceId")); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.metrics.SessionsRevoked.WithLabelValues(metrics.ScopeSingle).Inc()
	w.WriteHeader(http.StatusNoContent)
}
