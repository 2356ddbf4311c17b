package httpapi

import (
	"context"
	"net/http"
)

// DataResetter wipes one store. The testing endpoint runs the configured
// resetters in order, so stores with foreign keys go before their parents.
type DataResetter interface {
	DeleteAll(ctx context.Context) error
}

func (h *Handler) handleDeleteAllData(w http.ResponseWriter, r *http.Request) {
	for _, res := range h.resetters {
		if err := res.DeleteAll(r.Context()); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
