package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/soufra-erp/soufra-erp/internal/observability"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Handler wires HTTP endpoints for sales orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the sales handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{number}", h.handleGet)
	r.Post("/{number}/complete", h.handleComplete)
	r.Post("/{number}/cancel", h.handleCancel)
	r.Post("/zoho/retry", h.handleZohoRetry)
}

type itemRequest struct {
	ItemCode  string  `json:"item_code" validate:"required"`
	ItemName  string  `json:"item_name"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type recipeRequest struct {
	BOMCode   string  `json:"bom_code" validate:"required"`
	BOMName   string  `json:"bom_name"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createRequest struct {
	Outlet       string          `json:"outlet" validate:"required"`
	CustomerName string          `json:"customer_name"`
	OrderDate    string          `json:"order_date"`
	Items        []itemRequest   `json:"items" validate:"dive"`
	RecipeItems  []recipeRequest `json:"recipe_items" validate:"dive"`
	Discount     float64         `json:"discount" validate:"gte=0"`
	Notes        string          `json:"notes"`
	Actor        string          `json:"actor"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := outlet.Parse(req.Outlet)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var orderDate time.Time
	if req.OrderDate != "" {
		orderDate, err = time.Parse("2006-01-02", req.OrderDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order_date must be YYYY-MM-DD")
			return
		}
	}
	items := make([]Line, len(req.Items))
	for i, line := range req.Items {
		items[i] = Line{ItemCode: line.ItemCode, ItemName: line.ItemName, Quantity: line.Quantity, UnitPrice: line.UnitPrice}
	}
	recipes := make([]RecipeLine, len(req.RecipeItems))
	for i, line := range req.RecipeItems {
		recipes[i] = RecipeLine{BOMCode: line.BOMCode, BOMName: line.BOMName, Quantity: line.Quantity, UnitPrice: line.UnitPrice}
	}

	order, err := h.service.Create(r.Context(), CreateInput{
		Outlet:       id,
		CustomerName: req.CustomerName,
		OrderDate:    orderDate,
		Items:        items,
		RecipeItems:  recipes,
		Discount:     req.Discount,
		Notes:        req.Notes,
		Actor:        req.Actor,
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			status := http.StatusBadRequest
			if errors.Is(err, shared.ErrInsufficientStock) {
				status = http.StatusUnprocessableEntity
			}
			httpx.JSON(w, status, map[string]any{
				"success":  false,
				"message":  "order rejected; no stock was consumed",
				"problems": verr.Problems,
			})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordStockMovement(string(order.Outlet), "sales", "out")
	if order.ZohoSyncStatus != "" && order.ZohoSyncStatus != ZohoSyncNone {
		h.metrics.RecordZohoPush("invoice", order.ZohoSyncStatus)
	}
	httpx.Created(w, "order fulfilled", order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if name := q.Get("outlet"); name != "" {
		id, err := outlet.Parse(name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Outlet = id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	orders, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "", map[string]any{"orders": orders, "pagination": pagination})
}

type actorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Complete(r.Context(), chi.URLParam(r, "number"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "order completed", order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "number"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "order cancelled", order)
}

// handleZohoRetry re-pushes every order whose invoice push failed.
func (h *Handler) handleZohoRetry(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.RetryZohoPush(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	breakdown := make([]httpx.ItemResult, 0, len(outcome))
	for number, ok := range outcome {
		breakdown = append(breakdown, httpx.ItemResult{Key: number, Success: ok})
		result := ZohoSyncPushed
		if !ok {
			result = ZohoSyncFailed
		}
		h.metrics.RecordZohoPush("invoice", result)
	}
	httpx.OK(w, "reconciliation finished", breakdown)
}
