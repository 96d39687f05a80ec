package transfer

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/observability"
	"github.com/soufra-erp/soufra-erp/internal/outlet"
	"github.com/soufra-erp/soufra-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for transfer orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the transfer handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{number}", h.handleGet)
	r.Post("/{number}/approve", h.handleApprove)
	r.Post("/{number}/reject", h.handleReject)
	r.Post("/{number}/in-transit", h.handleInTransit)
	r.Post("/{number}/complete", h.handleComplete)
	r.Post("/{number}/cancel", h.handleCancel)
	r.Post("/zoho/retry", h.handleZohoRetry)
}

type lineRequest struct {
	ItemType  string  `json:"item_type" validate:"required,oneof=raw_material finished_good"`
	ItemCode  string  `json:"item_code" validate:"required"`
	ItemName  string  `json:"item_name"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createRequest struct {
	FromOutlet   string        `json:"from_outlet" validate:"required"`
	ToOutlet     string        `json:"to_outlet" validate:"required"`
	TransferDate string        `json:"transfer_date"`
	Priority     string        `json:"priority"`
	Items        []lineRequest `json:"items" validate:"required,min=1,dive"`
	Notes        string        `json:"notes"`
	RequestedBy  string        `json:"requested_by" validate:"required"`
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
	from, err := outlet.Parse(req.FromOutlet)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := outlet.Parse(req.ToOutlet)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var transferDate time.Time
	if req.TransferDate != "" {
		transferDate, err = time.Parse("2006-01-02", req.TransferDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transfer_date must be YYYY-MM-DD")
			return
		}
	}
	items := make([]Line, len(req.Items))
	for i, line := range req.Items {
		items[i] = Line{
			ItemType:  ledger.Kind(line.ItemType),
			ItemCode:  line.ItemCode,
			ItemName:  line.ItemName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		FromOutlet:   from,
		ToOutlet:     to,
		TransferDate: transferDate,
		Priority:     Priority(req.Priority),
		Items:        items,
		Notes:        req.Notes,
		RequestedBy:  req.RequestedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, "transfer order created", order)
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

type decisionRequest struct {
	Actor string `json:"actor" validate:"required"`
	Notes string `json:"notes"`
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	order, err := h.service.Approve(r.Context(), chi.URLParam(r, "number"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	for _, result := range order.Results {
		if !result.Success {
			continue
		}
		h.metrics.RecordStockMovement(string(order.FromOutlet), "transfer", "out")
		h.metrics.RecordStockMovement(string(order.ToOutlet), "transfer", "in")
	}
	if order.ZohoSyncStatus != "" && order.ZohoSyncStatus != ZohoSyncNone {
		h.metrics.RecordZohoPush("transfer_order", order.ZohoSyncStatus)
	}
	if order.Status == StatusFailed {
		httpx.JSON(w, http.StatusOK, httpx.Result{
			Success: false,
			Message: "transfer failed; see per-item results",
			Data:    order,
		})
		return
	}
	httpx.OK(w, "transfer approved", order)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	order, err := h.service.Reject(r.Context(), chi.URLParam(r, "number"), req.Actor, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "transfer rejected", order)
}

func (h *Handler) handleInTransit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	order, err := h.service.MarkInTransit(r.Context(), chi.URLParam(r, "number"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "transfer in transit", order)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	order, err := h.service.Complete(r.Context(), chi.URLParam(r, "number"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "transfer completed", order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decision(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "number"), req.Actor, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "transfer cancelled", order)
}

// handleZohoRetry re-pushes every order whose external sync failed and
// reports a per-order breakdown.
func (h *Handler) handleZohoRetry(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RetryZohoPush(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	breakdown := make([]httpx.ItemResult, len(results))
	for i, result := range results {
		breakdown[i] = httpx.ItemResult{Key: result.ItemCode, Success: result.Success, Error: result.Error}
		outcome := ZohoSyncPushed
		if !result.Success {
			outcome = ZohoSyncFailed
		}
		h.metrics.RecordZohoPush("transfer_order", outcome)
	}
	httpx.OK(w, "reconciliation finished", breakdown)
}
