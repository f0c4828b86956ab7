package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/platform/httpx"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// Handler manages master-data endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers master-data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}", h.list)
	r.Post("/{kind}", h.create)
	r.Post("/{kind}/{id}/deactivate", h.deactivate)
	r.Get("/yarn-types/{id}/brands", h.listBrands)
	r.Post("/yarn-types/{id}/brands", h.createBrand)
	r.Post("/greige-types", h.createGreigeType)
}

var kindSlugs = map[string]Kind{
	"suppliers":    KindSupplier,
	"factories":    KindFactory,
	"yarn-types":   KindYarnType,
	"greige-types": KindGreigeType,
	"dye-houses":   KindDyeHouse,
}

func kindParam(r *http.Request) (Kind, error) {
	kind, ok := kindSlugs[chi.URLParam(r, "kind")]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity kind", shared.ErrNotFound)
	}
	return kind, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entities, err := h.service.List(r.Context(), kind)
	if err != nil {
		h.logger.Error("list master data", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entities})
}

type createEntityRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createEntityRequest
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
	created, err := h.service.Create(r.Context(), kind, req.Name, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	if err := h.service.Deactivate(r.Context(), kind, id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	yarnTypeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	brands, err := h.service.ListBrands(r.Context(), yarnTypeID)
	if err != nil {
		h.logger.Error("list brands", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": brands})
}

type createBrandRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	yarnTypeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var req createBrandRequest
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
	created, err := h.service.CreateBrand(r.Context(), yarnTypeID, req.Name, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type greigeComponentRequest struct {
	YarnTypeID int64  `json:"yarn_type_id" validate:"required"`
	Pct        string `json:"pct" validate:"required"`
}

type createGreigeTypeRequest struct {
	Name       string                   `json:"name" validate:"required,min=1,max=200"`
	Components []greigeComponentRequest `json:"components" validate:"required,min=1,dive"`
}

func (h *Handler) createGreigeType(w http.ResponseWriter, r *http.Request) {
	var req createGreigeTypeRequest
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

	components := make([]composition.Component, 0, len(req.Components))
	for _, c := range req.Components {
		pct, err := decimal.NewFromString(shared.ASCIIDigits(c.Pct))
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid percentage %q", shared.ErrValidation, c.Pct))
			return
		}
		components = append(components, composition.Component{YarnTypeID: c.YarnTypeID, Pct: pct})
	}

	created, err := h.service.CreateGreigeType(r.Context(), req.Name, components, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}
