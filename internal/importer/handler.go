package importer

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
)

const maxUploadBytes = 10 << 20

// Handler wires the Excel import/export endpoints under one outlet subtree.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the importer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers import/export routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items/{kind}/import", h.handleImport)
	r.Get("/items/{kind}/export", h.handleExport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	id, err := outlet.Parse(chi.URLParam(r, "outlet"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := ledger.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown item kind")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form with a file field required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field missing")
		return
	}
	defer file.Close()

	results, err := h.service.Import(r.Context(), id, kind, file, r.FormValue("actor"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}
	httpx.OK(w, fmt.Sprintf("%d of %d rows imported", succeeded, len(results)), results)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := outlet.Parse(chi.URLParam(r, "outlet"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := ledger.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown item kind")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%s-%s.xlsx`, id.Code(), kind))
	if err := h.service.Export(r.Context(), id, kind, w); err != nil {
		h.logger.Error("export failed",
			slog.String("outlet", string(id)), slog.Any("error", err))
	}
}
