package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

// Snapshot loads the current state of one collection.
type Snapshot func(ctx context.Context) (any, error)

// Subscriber is implemented by Hub.
type Subscriber interface {
	Subscribe(ctx context.Context, collections ...string) (<-chan Change, error)
}

// Handler streams snapshots as server-sent events: once on connect and again
// after every change to the watched collection.
type Handler struct {
	logger    *slog.Logger
	hub       Subscriber
	auth      auth.Middleware
	streams   map[string]stream
	heartbeat time.Duration
}

// NewHandler constructs the events handler.
func NewHandler(logger *slog.Logger, hub Subscriber, auth auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, hub: hub, auth: auth, streams: map[string]stream{}, heartbeat: 25 * time.Second}
}

type stream struct {
	snapshot Snapshot
	watch    []string
}

// Register makes a collection streamable. The snapshot is resent whenever one
// of the watched collections changes; with none given it watches itself.
func (h *Handler) Register(collection string, snapshot Snapshot, watch ...string) {
	if len(watch) == 0 {
		watch = []string{collection}
	}
	h.streams[collection] = stream{snapshot: snapshot, watch: watch}
}

// MountRoutes registers GET / under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.auth.RequireRole(shared.RoleViewer)).Get("/", h.stream)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	collection := strings.TrimSpace(r.URL.Query().Get("collection"))
	st, ok := h.streams[collection]
	if !ok {
		httpx.RespondError(w, shared.FieldError("collection", "unknown collection"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "streaming unsupported")
		return
	}
	ctx := r.Context()
	changes, err := h.hub.Subscribe(ctx, st.watch...)
	if err != nil {
		h.logger.Error("subscribe change feed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(change *Change) bool {
		state, err := st.snapshot(ctx)
		if err != nil {
			h.logger.Warn("load snapshot", slog.String("collection", collection), slog.Any("error", err))
			return ctx.Err() == nil
		}
		payload, err := json.Marshal(struct {
			Collection string  `json:"collection"`
			Change     *Change `json:"change,omitempty"`
			Data       any     `json:"data"`
		}{collection, change, state})
		if err != nil {
			h.logger.Error("encode snapshot", slog.Any("error", err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(nil) {
		return
	}
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if !send(&change) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
