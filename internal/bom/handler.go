package bom

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the shared BOM catalogue.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	resolver *Resolver
	ledgers  ledger.Provider
	validate *validator.Validate
}

// NewHandler constructs the BOM handler. ledgers powers the optional
// finished-good probe on resolution and may be nil.
func NewHandler(logger *slog.Logger, repo *Repository, resolver *Resolver, ledgers ledger.Provider) *Handler {
	return &Handler{
		logger:   logger,
		repo:     repo,
		resolver: resolver,
		ledgers:  ledgers,
		validate: validator.New(),
	}
}

// MountRoutes registers BOM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{code}", h.handleGet)
	r.Put("/{code}", h.handleUpdate)
	r.Delete("/{code}", h.handleDelete)
	r.Get("/{code}/resolve", h.handleResolve)
}

type bomItemRequest struct {
	ItemType     string  `json:"item_type" validate:"required,oneof=raw_material bom"`
	MaterialCode string  `json:"material_code" validate:"required"`
	MaterialName string  `json:"material_name"`
	Quantity     float64 `json:"quantity" validate:"gt=0"`
}

type bomRequest struct {
	Code        string           `json:"code" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Items       []bomItemRequest `json:"items" validate:"required,min=1,dive"`
	Actor       string           `json:"actor"`
}

func toItems(reqs []bomItemRequest) []Item {
	items := make([]Item, len(reqs))
	for i, req := range reqs {
		items[i] = Item{
			ItemType:     ItemType(req.ItemType),
			MaterialCode: req.MaterialCode,
			MaterialName: req.MaterialName,
			Quantity:     req.Quantity,
		}
	}
	return items
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.repo.Create(r.Context(), BOM{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Items:       toItems(req.Items),
		CreatedBy:   req.Actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, "bom created", created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	b, err := h.repo.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", b)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	boms, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", boms)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	req.Code = chi.URLParam(r, "code")
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.repo.Update(r.Context(), req.Code, req.Name, req.Description, toItems(req.Items))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "bom updated", updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Deactivate(r.Context(), chi.URLParam(r, "code")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "bom deactivated", nil)
}

// handleResolve expands a BOM into flat demand. An optional outlet query
// parameter enables finished-good reclassification against that outlet's
// ledger.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	quantity := 1.0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a positive number")
			return
		}
		quantity = parsed
	}

	var probe FinishedGoodProbe
	if name := r.URL.Query().Get("outlet"); name != "" && h.ledgers != nil {
		id, err := outlet.Parse(name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		store, err := h.ledgers.Store(id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		probe = func(ctx context.Context, code string) (bool, error) {
			_, err := store.FindByCode(ctx, ledger.KindFinishedGood, code)
			if errors.Is(err, ledger.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		}
	}

	demand, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "code"), quantity, probe)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", map[string]any{
		"raw_materials":  demand.RawMaterials,
		"finished_goods": demand.FinishedGoods,
	})
}
