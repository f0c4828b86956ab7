package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
)

// WorkflowPort is the slice of the workflow service the document builders use.
type WorkflowPort interface {
	Submit(ctx context.Context, sub workflow.Submission, actor shared.Identity) (workflow.SubmitResult, error)
}

// Service builds normalized document payloads and submits them through the
// workflow. A fresh catalog is loaded per submission; its caches are never
// reused across runs.
type Service struct {
	catalogs catalog.RepositoryPort
	workflow WorkflowPort
	repo     RepositoryPort
	logger   *slog.Logger
}

// NewService constructs the receipts service.
func NewService(catalogs catalog.RepositoryPort, wf WorkflowPort, repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{catalogs: catalogs, workflow: wf, repo: repo, logger: logger}
}

// SubmitYarnPurchase validates and submits a yarn purchase document.
func (s *Service) SubmitYarnPurchase(ctx context.Context, in YarnPurchaseInput, actor shared.Identity) (workflow.SubmitResult, error) {
	if err := validateYarnPurchase(in); err != nil {
		return workflow.SubmitResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	payload := buildYarnPayload(in)
	sub := workflow.Submission{
		Family:    workflow.YarnPurchaseFamily(),
		Operation: workflow.OpCreate,
		Payload:   payload,
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// EditYarnPurchase submits an edit request for an existing document.
func (s *Service) EditYarnPurchase(ctx context.Context, documentID int64, in YarnPurchaseInput, actor shared.Identity) (workflow.SubmitResult, error) {
	if err := validateYarnPurchase(in); err != nil {
		return workflow.SubmitResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	payload := buildYarnPayload(in)
	payload["document_id"] = documentID
	sub := workflow.Submission{
		Family:           workflow.YarnPurchaseFamily(),
		Operation:        workflow.OpEdit,
		TargetDocumentID: strconv.FormatInt(documentID, 10),
		Payload:          payload,
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// DeleteYarnPurchase submits a deletion request for an existing document.
func (s *Service) DeleteYarnPurchase(ctx context.Context, documentID int64, actor shared.Identity) (workflow.SubmitResult, error) {
	sub := workflow.Submission{
		Family:           workflow.YarnPurchaseFamily(),
		Operation:        workflow.OpDelete,
		TargetDocumentID: strconv.FormatInt(documentID, 10),
		Payload:          map[string]any{"document_id": documentID},
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// SubmitGreigeReceipt validates and submits a greige receipt. Recipe-driven
// allocations are derived here and frozen into the payload; they are never
// taken from the input.
func (s *Service) SubmitGreigeReceipt(ctx context.Context, in GreigeReceiptInput, actor shared.Identity) (workflow.SubmitResult, error) {
	payload, err := s.buildGreigePayload(ctx, in)
	if err != nil {
		return workflow.SubmitResult{}, err
	}
	sub := workflow.Submission{
		Family:    workflow.GreigeReceiptFamily(),
		Operation: workflow.OpCreate,
		Payload:   payload,
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// EditGreigeReceipt submits an edit request; allocations are recomputed
// from the current recipe, not copied from the stored document.
func (s *Service) EditGreigeReceipt(ctx context.Context, documentID int64, in GreigeReceiptInput, actor shared.Identity) (workflow.SubmitResult, error) {
	payload, err := s.buildGreigePayload(ctx, in)
	if err != nil {
		return workflow.SubmitResult{}, err
	}
	payload["document_id"] = documentID
	sub := workflow.Submission{
		Family:           workflow.GreigeReceiptFamily(),
		Operation:        workflow.OpEdit,
		TargetDocumentID: strconv.FormatInt(documentID, 10),
		Payload:          payload,
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// DeleteGreigeReceipt submits a deletion request.
func (s *Service) DeleteGreigeReceipt(ctx context.Context, documentID int64, actor shared.Identity) (workflow.SubmitResult, error) {
	sub := workflow.Submission{
		Family:           workflow.GreigeReceiptFamily(),
		Operation:        workflow.OpDelete,
		TargetDocumentID: strconv.FormatInt(documentID, 10),
		Payload:          map[string]any{"document_id": documentID},
	}
	return s.workflow.Submit(ctx, sub, actor)
}

// List returns a page of the family's listing view.
func (s *Service) List(ctx context.Context, family Family, limit, offset int) ([]DocumentSummary, int, error) {
	return s.repo.List(ctx, family, limit, offset)
}

func validateYarnPurchase(in YarnPurchaseInput) error {
	if in.SupplierID == 0 {
		return fmt.Errorf("supplier required")
	}
	if in.FactoryID == 0 {
		return fmt.Errorf("factory required")
	}
	if in.NoteNo == "" {
		return fmt.Errorf("supplier note number required")
	}
	if in.NoteDate.IsZero() {
		return fmt.Errorf("supplier note date required")
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("at least one item required")
	}
	for i, it := range in.Items {
		if it.YarnTypeID == 0 {
			return fmt.Errorf("item %d: yarn type required", i+1)
		}
		if it.Qty.Sign() <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		if it.Price.Sign() < 0 {
			return fmt.Errorf("item %d: price cannot be negative", i+1)
		}
	}
	return nil
}

func buildYarnPayload(in YarnPurchaseInput) map[string]any {
	items := make([]map[string]any, 0, len(in.Items))
	grandTotal := decimal.Zero
	for _, it := range in.Items {
		lineTotal := it.Qty.Mul(it.Price).Round(3)
		grandTotal = grandTotal.Add(lineTotal)
		item := map[string]any{
			"yarn_type_id": it.YarnTypeID,
			"qty":          it.Qty,
			"price":        it.Price,
			"line_total":   lineTotal,
		}
		if it.BrandID != nil {
			item["brand_id"] = *it.BrandID
		}
		if it.LotNo != "" {
			item["lot_no"] = it.LotNo
		}
		items = append(items, item)
	}
	payload := map[string]any{
		"supplier_id":        in.SupplierID,
		"factory_id":         in.FactoryID,
		"supplier_note_no":   in.NoteNo,
		"supplier_note_date": in.NoteDate.Format("2006-01-02"),
		"items":              items,
		"grand_total":        grandTotal.Round(3),
	}
	if in.ImagePath != "" {
		payload["image_path"] = in.ImagePath
	}
	return payload
}

func (s *Service) buildGreigePayload(ctx context.Context, in GreigeReceiptInput) (map[string]any, error) {
	if err := validateGreigeReceipt(in); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	cat := catalog.NewCatalog(s.catalogs)
	if err := cat.Refresh(ctx); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(in.Items))
	for i, it := range in.Items {
		recipe, ok := cat.Recipe(it.GreigeTypeID)
		if !ok {
			return nil, fmt.Errorf("%w: item %d: greige type %d has no recipe", shared.ErrValidation, i+1, it.GreigeTypeID)
		}
		if err := composition.ValidateRecipe(recipe); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", shared.ErrValidation, i+1, err)
		}

		details := make(map[int64]AllocationDetail, len(it.Details))
		for _, d := range it.Details {
			details[d.YarnTypeID] = d
		}

		allocs := composition.Allocate(recipe, it.Qty)
		rows := make([]map[string]any, 0, len(allocs))
		for _, a := range allocs {
			row := map[string]any{
				"yarn_type_id": a.YarnTypeID,
				"required_qty": a.RequiredQty,
			}
			if d, ok := details[a.YarnTypeID]; ok {
				if d.BrandID != nil {
					row["brand_id"] = *d.BrandID
				}
				if d.LotNo != "" {
					row["lot_no"] = d.LotNo
				}
			}
			rows = append(rows, row)
		}

		item := map[string]any{
			"greige_type_id": it.GreigeTypeID,
			"qty":            it.Qty,
			"allocations":    rows,
		}
		if it.Rolls > 0 {
			item["rolls"] = it.Rolls
		}
		if it.Specs != "" {
			item["specs"] = it.Specs
		}
		items = append(items, item)
	}

	payload := map[string]any{
		"factory_id": in.FactoryID,
		"note_no":    in.NoteNo,
		"note_date":  in.NoteDate.Format("2006-01-02"),
		"items":      items,
	}
	if in.DyeHouseID != 0 {
		payload["dye_house_id"] = in.DyeHouseID
	}
	if in.ImagePath != "" {
		payload["image_path"] = in.ImagePath
	}
	return payload, nil
}

func validateGreigeReceipt(in GreigeReceiptInput) error {
	if in.FactoryID == 0 {
		return fmt.Errorf("factory required")
	}
	if in.NoteNo == "" {
		return fmt.Errorf("note number required")
	}
	if in.NoteDate.IsZero() {
		return fmt.Errorf("note date required")
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("at least one item required")
	}
	for i, it := range in.Items {
		if it.GreigeTypeID == 0 {
			return fmt.Errorf("item %d: greige type required", i+1)
		}
		if it.Qty.Sign() <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
	}
	return nil
}
