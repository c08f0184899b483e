package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
	exports singleflight.Group
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, auth auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleViewer))
		r.Get("/items", h.handleListItems)
		r.Get("/items/{id}", h.handleGetItem)
		r.Get("/balances", h.handleBalances)
		r.Get("/balances.xlsx", h.handleExportBalances)
		r.Get("/balances/{kind}/{id}", h.handleBalance)
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/movements", h.handleMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleOperator))
		r.Post("/items", h.handleCreateItem)
		r.Put("/items/{id}", h.handleUpdateItem)
		r.Post("/stock-in", h.handleStock(h.service.StockIn))
		r.Post("/stock-out", h.handleStock(h.service.StockOut))
	})
}

func itemFilterFromQuery(r *http.Request) ItemFilter {
	q := r.URL.Query()
	return ItemFilter{Kind: ledger.ItemKind(q.Get("kind")), Group: q.Get("group"), Query: q.Get("q")}
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), itemFilterFromQuery(r))
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var input ItemInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.fail(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var input ItemInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.Balances(r.Context(), itemFilterFromQuery(r))
	if err != nil {
		h.fail(w, "list balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ref := ledger.ItemRef{Kind: ledger.ItemKind(chi.URLParam(r, "kind")), ItemID: chi.URLParam(r, "id")}
	line, err := h.service.Balance(r.Context(), ref)
	if err != nil {
		h.fail(w, "recompute balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

type lowStockResponse struct {
	Total int                `json:"total"`
	Items []ledger.StockLine `json:"items"`
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	lines, total, err := h.service.LowStock(r.Context(), limit)
	if err != nil {
		h.fail(w, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lowStockResponse{Total: total, Items: lines})
}

func (h *Handler) handleExportBalances(w http.ResponseWriter, r *http.Request) {
	ch := h.exports.DoChan("balances", func() (any, error) {
		return h.service.ExportBalances(context.WithoutCancel(r.Context()))
	})
	var res singleflight.Result
	select {
	case <-r.Context().Done():
		return
	case res = <-ch:
	}
	if res.Err != nil {
		h.fail(w, "export balances", res.Err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="balances.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Val.([]byte))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{From: q.Get("from"), To: q.Get("to")}
	if kind, id := q.Get("kind"), q.Get("item_id"); id != "" {
		filter.Item = &ledger.ItemRef{Kind: ledger.ItemKind(kind), ItemID: id}
	}
	if refKind, refID := q.Get("ref_kind"), q.Get("ref_id"); refID != "" {
		filter.Ref = &ledger.DocRef{Kind: ledger.DocKind(refKind), ID: refID}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	perPage = min(perPage, MaxMovementsPage)
	p := shared.NewPagination(page, perPage, 0)
	filter.Limit = p.PerPage
	filter.Offset = (p.Page - 1) * p.PerPage
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleStock(post func(context.Context, StockRequest, string) (StockResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StockRequest
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.BadRequest(w, err.Error())
			return
		}
		result, err := post(r.Context(), req, r.Header.Get("Idempotency-Key"))
		if err != nil {
			h.fail(w, "post stock movement", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, result)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
