package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

// Handler exposes goods received notes over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
}

// NewHandler builds the procurement handler.
func NewHandler(logger *slog.Logger, service *Service, auth auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/grns", h.listGRNs)
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/grns/{id}", h.showGRN)
	r.With(h.auth.RequireRole(shared.RoleOperator)).Post("/grns", h.createGRN)
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	bills, err := h.service.ListGRNs(r.Context(), BillFilter{
		DocFilter:  inventory.DocFilter{From: q.Get("from"), To: q.Get("to"), Limit: limit, Offset: offset},
		SupplierID: q.Get("supplier_id"),
	})
	if err != nil {
		h.logger.Error("list grns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) showGRN(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.GetGRN(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var input CreateGRNInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	grn, err := h.service.CreateGRN(r.Context(), input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.Warn("create grn failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}
