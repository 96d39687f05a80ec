package zoho

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
)

// Handler wires the mapping-cache refresh endpoints.
type Handler struct {
	logger  *slog.Logger
	adapter *Adapter
}

// NewHandler constructs the zoho handler.
func NewHandler(logger *slog.Logger, adapter *Adapter) *Handler {
	return &Handler{logger: logger, adapter: adapter}
}

// MountRoutes registers zoho cache routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/locations/refresh", h.handleRefreshLocations)
	r.Post("/items/refresh", h.handleRefreshItems)
}

func (h *Handler) handleRefreshLocations(w http.ResponseWriter, r *http.Request) {
	saved, err := h.adapter.RefreshLocations(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "location cache refreshed", map[string]int{"saved": saved})
}

func (h *Handler) handleRefreshItems(w http.ResponseWriter, r *http.Request) {
	saved, err := h.adapter.RefreshItems(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "item cache refreshed", map[string]int{"saved": saved})
}
