package receipts

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack-erp/milltrack/internal/platform/blob"
	"github.com/milltrack-erp/milltrack/internal/platform/httpx"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
)

const maxImageBytes = 10 << 20

// Handler manages document submission and listing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	blobs    blob.Store
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, blobs blob.Store) *Handler {
	return &Handler{logger: logger, service: service, blobs: blobs, validate: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/yarn-purchases", h.listYarn)
	r.Post("/yarn-purchases", h.createYarn)
	r.Put("/yarn-purchases/{id}", h.editYarn)
	r.Delete("/yarn-purchases/{id}", h.deleteYarn)

	r.Get("/greige-receipts", h.listGreige)
	r.Post("/greige-receipts", h.createGreige)
	r.Put("/greige-receipts/{id}", h.editGreige)
	r.Delete("/greige-receipts/{id}", h.deleteGreige)

	r.Post("/receipt-images", h.uploadImage)
}

type yarnItemRequest struct {
	YarnTypeID int64           `json:"yarn_type_id" validate:"required"`
	BrandID    *int64          `json:"brand_id"`
	LotNo      string          `json:"lot_no"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}

type yarnPurchaseRequest struct {
	SupplierID int64             `json:"supplier_id" validate:"required"`
	FactoryID  int64             `json:"factory_id" validate:"required"`
	NoteNo     string            `json:"supplier_note_no" validate:"required"`
	NoteDate   string            `json:"supplier_note_date" validate:"required"`
	ImagePath  string            `json:"image_path"`
	Items      []yarnItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (req yarnPurchaseRequest) toInput() (YarnPurchaseInput, error) {
	date, err := parseNoteDate(req.NoteDate)
	if err != nil {
		return YarnPurchaseInput{}, err
	}
	in := YarnPurchaseInput{
		SupplierID: req.SupplierID,
		FactoryID:  req.FactoryID,
		NoteNo:     req.NoteNo,
		NoteDate:   date,
		ImagePath:  req.ImagePath,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, YarnItemInput{
			YarnTypeID: it.YarnTypeID,
			BrandID:    it.BrandID,
			LotNo:      it.LotNo,
			Qty:        it.Qty,
			Price:      it.Price,
		})
	}
	return in, nil
}

type allocationDetailRequest struct {
	YarnTypeID int64  `json:"yarn_type_id" validate:"required"`
	BrandID    *int64 `json:"brand_id"`
	LotNo      string `json:"lot_no"`
}

type greigeItemRequest struct {
	GreigeTypeID int64                     `json:"greige_type_id" validate:"required"`
	Qty          decimal.Decimal           `json:"qty"`
	Rolls        int                       `json:"rolls"`
	Specs        string                    `json:"specs"`
	Details      []allocationDetailRequest `json:"details" validate:"dive"`
}

type greigeReceiptRequest struct {
	FactoryID  int64               `json:"factory_id" validate:"required"`
	DyeHouseID int64               `json:"dye_house_id"`
	NoteNo     string              `json:"note_no" validate:"required"`
	NoteDate   string              `json:"note_date" validate:"required"`
	ImagePath  string              `json:"image_path"`
	Items      []greigeItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (req greigeReceiptRequest) toInput() (GreigeReceiptInput, error) {
	date, err := parseNoteDate(req.NoteDate)
	if err != nil {
		return GreigeReceiptInput{}, err
	}
	in := GreigeReceiptInput{
		FactoryID:  req.FactoryID,
		DyeHouseID: req.DyeHouseID,
		NoteNo:     req.NoteNo,
		NoteDate:   date,
		ImagePath:  req.ImagePath,
	}
	for _, it := range req.Items {
		item := GreigeItemInput{
			GreigeTypeID: it.GreigeTypeID,
			Qty:          it.Qty,
			Rolls:        it.Rolls,
			Specs:        it.Specs,
		}
		for _, d := range it.Details {
			item.Details = append(item.Details, AllocationDetail{
				YarnTypeID: d.YarnTypeID,
				BrandID:    d.BrandID,
				LotNo:      d.LotNo,
			})
		}
		in.Items = append(in.Items, item)
	}
	return in, nil
}

func parseNoteDate(raw string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", shared.ASCIIDigits(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
	}
	return date, nil
}

func (h *Handler) listYarn(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, FamilyYarnPurchase)
}

func (h *Handler) listGreige(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, FamilyGreigeReceipt)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, family Family) {
	page := shared.ParsePagination(r)
	items, total, err := h.service.List(r.Context(), family, page.PerPage, page.Offset())
	if err != nil {
		h.logger.Error("list documents", slog.String("family", string(family)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) createYarn(w http.ResponseWriter, r *http.Request) {
	var req yarnPurchaseRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.SubmitYarnPurchase(r.Context(), in, actor)
	h.respondSubmit(w, res, err)
}

func (h *Handler) editYarn(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req yarnPurchaseRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.EditYarnPurchase(r.Context(), id, in, actor)
	h.respondSubmit(w, res, err)
}

func (h *Handler) deleteYarn(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	res, err := h.service.DeleteYarnPurchase(r.Context(), id, actor)
	h.respondSubmit(w, res, err)
}

func (h *Handler) createGreige(w http.ResponseWriter, r *http.Request) {
	var req greigeReceiptRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.SubmitGreigeReceipt(r.Context(), in, actor)
	h.respondSubmit(w, res, err)
}

func (h *Handler) editGreige(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req greigeReceiptRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.EditGreigeReceipt(r.Context(), id, in, actor)
	h.respondSubmit(w, res, err)
}

func (h *Handler) deleteGreige(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	res, err := h.service.DeleteGreigeReceipt(r.Context(), id, actor)
	h.respondSubmit(w, res, err)
}

// uploadImage stores a receipt image and returns its path plus a short-lived
// preview URL. The path travels opaque inside the document payload.
func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.IdentityFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	if h.blobs == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "image storage is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "image file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	path := fmt.Sprintf("receipts/%s/%s%s",
		time.Now().UTC().Format("2006/01"), uuid.NewString(), filepath.Ext(header.Filename))
	stored, err := h.blobs.Upload(r.Context(), path, data, contentType)
	if err != nil {
		h.logger.Error("upload receipt image", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	url, err := h.blobs.SignedURL(stored, 15*time.Minute)
	if err != nil {
		h.logger.Error("sign receipt image url", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"path": stored, "url": url})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) (shared.Identity, bool) {
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return shared.Identity{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return shared.Identity{}, false
	}
	actor, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return shared.Identity{}, false
	}
	return actor, true
}

func (h *Handler) respondSubmit(w http.ResponseWriter, res workflow.SubmitResult, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body := map[string]any{"outcome": string(res.Outcome)}
	if res.RequestID != "" {
		body["request_id"] = res.RequestID
	}
	status := http.StatusCreated
	if res.Outcome == workflow.OutcomeCommittedPendingApproval {
		body["warning"] = "created but still pending approval"
	}
	httpx.JSON(w, status, body)
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrNotFound
	}
	return id, nil
}
