package production

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

// Handler exposes production runs over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service, auth auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/runs", h.list)
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/runs/{id}", h.show)
	r.With(h.auth.RequireRole(shared.RoleOperator)).Post("/runs", h.create)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	runs, err := h.service.List(r.Context(), inventory.DocFilter{From: q.Get("from"), To: q.Get("to"), Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Error("list production runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateRunInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	rec, err := h.service.Record(r.Context(), input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.Warn("record production failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}
