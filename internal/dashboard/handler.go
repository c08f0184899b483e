package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

// Handler exposes the dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    auth.Middleware
}

// NewHandler constructs the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service, auth auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers GET / under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Build(r.Context())
	if err != nil {
		h.logger.Error("build dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, dash)
}
