package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/soufra-erp/soufra-erp/internal/observability"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the per-outlet ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the ledger handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers ledger routes under one outlet subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleList)
	r.Post("/items", h.handleCreate)
	r.Get("/items/{kind}/{code}", h.handleGet)
	r.Patch("/items/{kind}/{code}/stock", h.handleAdjust)
	r.Delete("/items/{kind}/{code}", h.handleDelete)
	r.Get("/categories/{kind}", h.handleCategories)
	r.Get("/low-stock/{kind}", h.handleLowStock)
}

// MountReportRoutes registers cross-outlet report routes.
func (h *Handler) MountReportRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStockReport)
}

func outletParam(r *http.Request) (outlet.ID, error) {
	return outlet.Parse(chi.URLParam(r, "outlet"))
}

func kindParam(r *http.Request) Kind {
	return Kind(chi.URLParam(r, "kind"))
}

type createItemRequest struct {
	Kind          string  `json:"kind" validate:"required,oneof=raw_material finished_good"`
	Code          string  `json:"code" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Category      string  `json:"category"`
	SubCategory   string  `json:"sub_category"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	InitialStock  float64 `json:"initial_stock" validate:"gte=0"`
	MinimumStock  float64 `json:"minimum_stock" validate:"gte=0"`
	MaximumStock  float64 `json:"maximum_stock" validate:"gte=0"`
	ReorderPoint  float64 `json:"reorder_point" validate:"gte=0"`
	Actor         string  `json:"actor"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.Create(r.Context(), id, CreateInput{
		Kind:          Kind(req.Kind),
		Code:          req.Code,
		Name:          req.Name,
		Category:      req.Category,
		SubCategory:   req.SubCategory,
		UnitOfMeasure: req.UnitOfMeasure,
		UnitPrice:     req.UnitPrice,
		InitialStock:  req.InitialStock,
		MinimumStock:  req.MinimumStock,
		MaximumStock:  req.MaximumStock,
		ReorderPoint:  req.ReorderPoint,
		Actor:         req.Actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordStockMovement(string(id), req.Kind, "in")
	httpx.Created(w, "item created", item)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Item(r.Context(), id, kindParam(r), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", item)
}

type adjustStockRequest struct {
	Delta float64 `json:"delta" validate:"required"`
	Actor string  `json:"actor"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind := kindParam(r)
	item, err := h.service.Adjust(r.Context(), id, kind, chi.URLParam(r, "code"), req.Delta, req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	direction := "in"
	if req.Delta < 0 {
		direction = "out"
	}
	h.metrics.RecordStockMovement(string(id), string(kind), direction)
	httpx.OK(w, "stock adjusted", item)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := r.URL.Query().Get("actor")
	if err := h.service.SoftDelete(r.Context(), id, kindParam(r), chi.URLParam(r, "code"), actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "item deactivated", nil)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Kind:     Kind(q.Get("kind")),
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	items, pagination, err := h.service.List(r.Context(), id, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	categories, err := h.service.Categories(r.Context(), id, kindParam(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", categories)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	id, err := outletParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.LowStock(r.Context(), id, kindParam(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", items)
}

func (h *Handler) handleLowStockReport(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindRawMaterial
	}
	report, err := h.service.LowStockAcrossOutlets(r.Context(), kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", report)
}
