package delivery

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

// Handler exposes delivery notes over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
}

// NewHandler constructs the delivery handler.
func NewHandler(logger *slog.Logger, service *Service, auth auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleViewer))
		r.Get("/notes", h.list)
		r.Get("/notes/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(shared.RoleOperator))
		r.Post("/notes", h.create)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	notes, err := h.service.List(r.Context(), NoteFilter{
		DocFilter: inventory.DocFilter{From: q.Get("from"), To: q.Get("to"), Limit: limit, Offset: offset},
		Customer:  q.Get("customer"),
	})
	if err != nil {
		h.logger.Error("list delivery notes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	issued, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issued)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateNoteInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	issued, err := h.service.Issue(r.Context(), input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issued)
}
