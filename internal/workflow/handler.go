package workflow

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

// HistoryReader lists the disposition trail of one request.
type HistoryReader interface {
	List(ctx context.Context, family, requestID string) ([]HistoryEntry, error)
}

// Handler exposes the review queue and the approve/reject endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	history  HistoryReader
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, history HistoryReader) *Handler {
	return &Handler{logger: logger, service: service, history: history, validate: validator.New()}
}

// MountRoutes registers change-request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pending", h.listPending)
	r.Get("/{family}/{id}/history", h.listHistory)
	r.Post("/{family}/{id}/approve", h.approve)
	r.Post("/{family}/{id}/reject", h.reject)
}

var familySlugs = map[string]func() ProcedureFamily{
	"yarn-purchases":  YarnPurchaseFamily,
	"greige-receipts": GreigeReceiptFamily,
}

func familyParam(r *http.Request) (ProcedureFamily, error) {
	build, ok := familySlugs[chi.URLParam(r, "family")]
	if !ok {
		return ProcedureFamily{}, fmt.Errorf("%w: unknown document family", shared.ErrNotFound)
	}
	return build(), nil
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r)
	items, total, err := h.service.ListPending(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.logger.Error("list pending requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	family, err := familyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.history.List(r.Context(), family.Name, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("list request history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	family, err := familyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Approve(r.Context(), family, id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusApproved)})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	family, err := familyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Reject(r.Context(), family, id, req.Reason, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(StatusRejected)})
}
