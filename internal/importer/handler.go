package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/milltrack-erp/milltrack/internal/platform/httpx"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// Enqueuer hands an import run to the background queue.
type Enqueuer interface {
	EnqueueImportRun(ctx context.Context, raw string, actor shared.Identity) error
}

// Handler exposes the bulk import endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
	validate *validator.Validate
}

// NewHandler builds a Handler instance. The enqueuer may be nil, in which
// case only the inline endpoint is available.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validate: validator.New()}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.run)
	r.Post("/enqueue", h.enqueue)
}

type importRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	req, actor, ok := h.decode(w, r)
	if !ok {
		return
	}
	report, err := h.service.Run(r.Context(), req.Text, actor)
	if err != nil {
		h.logger.Warn("import run failed",
			slog.Int("processed", report.Processed), slog.Int("total", report.Total),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background imports not configured")
		return
	}
	req, actor, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.enqueuer.EnqueueImportRun(r.Context(), req.Text, actor); err != nil {
		h.logger.Error("enqueue import", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (importRequest, shared.Identity, bool) {
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return req, shared.Identity{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return req, shared.Identity{}, false
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return req, shared.Identity{}, false
	}
	return req, actor, true
}
