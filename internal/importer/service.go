package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
)

// ReceiptsPort is the document submission surface used per group.
type ReceiptsPort interface {
	SubmitYarnPurchase(ctx context.Context, in receipts.YarnPurchaseInput, actor shared.Identity) (workflow.SubmitResult, error)
}

// Report describes one import run. Processed counts committed groups; on
// failure it stops short of Total.
type Report struct {
	Total     int                     `json:"total"`
	Processed int                     `json:"processed"`
	Outcomes  []workflow.SubmitResult `json:"outcomes"`
}

// Service runs bulk imports. Groups are processed strictly sequentially:
// later groups may reuse master entities created by earlier ones in the
// same run.
type Service struct {
	catalogs catalog.RepositoryPort
	receipts ReceiptsPort
	logger   *slog.Logger
}

// NewService constructs the import service.
func NewService(catalogs catalog.RepositoryPort, receiptsSvc ReceiptsPort, logger *slog.Logger) *Service {
	return &Service{catalogs: catalogs, receipts: receiptsSvc, logger: logger}
}

// Run parses, groups and submits the pasted text. The first unresolvable
// group aborts the whole run; the report carries how far it got and the
// error names the failing group. No partial commit of a malformed group.
func (s *Service) Run(ctx context.Context, raw string, actor shared.Identity) (Report, error) {
	rows, err := Parse(raw)
	if err != nil {
		return Report{}, err
	}
	groups := Group(rows)
	report := Report{Total: len(groups)}

	cat := catalog.NewCatalog(s.catalogs)
	if err := cat.Refresh(ctx); err != nil {
		return report, err
	}

	for i, group := range groups {
		in, err := s.buildGroup(ctx, cat, group)
		if err != nil {
			return report, fmt.Errorf("importer: processed %d of %d groups: %w", report.Processed, report.Total, err)
		}
		res, err := s.receipts.SubmitYarnPurchase(ctx, in, actor)
		if err != nil {
			return report, fmt.Errorf("importer: processed %d of %d groups: %w", report.Processed, report.Total, err)
		}
		report.Processed = i + 1
		report.Outcomes = append(report.Outcomes, res)
		s.logger.Info("import group submitted",
			slog.Int("group", i+1), slog.Int("total", report.Total),
			slog.String("outcome", string(res.Outcome)))
	}
	return report, nil
}

func (s *Service) buildGroup(ctx context.Context, cat *catalog.Catalog, group []Row) (receipts.YarnPurchaseInput, error) {
	head := group[0]

	supplier, err := cat.GetOrCreateByName(ctx, catalog.KindSupplier, head.SupplierName)
	if err != nil {
		return receipts.YarnPurchaseInput{}, err
	}
	factory, err := cat.GetOrCreateByName(ctx, catalog.KindFactory, head.FactoryName)
	if err != nil {
		return receipts.YarnPurchaseInput{}, err
	}
	if head.NoteDate == "" {
		return receipts.YarnPurchaseInput{}, fmt.Errorf("%w: supplier_note_date required", shared.ErrValidation)
	}
	noteDate, err := parseDate(head.NoteDate)
	if err != nil {
		return receipts.YarnPurchaseInput{}, err
	}

	in := receipts.YarnPurchaseInput{
		SupplierID: supplier.ID,
		FactoryID:  factory.ID,
		NoteNo:     head.NoteNo,
		NoteDate:   noteDate,
	}
	for _, r := range group {
		yarnType, err := cat.GetOrCreateByName(ctx, catalog.KindYarnType, r.YarnType)
		if err != nil {
			return receipts.YarnPurchaseInput{}, err
		}
		brand, err := cat.GetOrCreateBrand(ctx, yarnType.ID, r.YarnBrand)
		if err != nil {
			return receipts.YarnPurchaseInput{}, err
		}

		if r.Qty == "" {
			return receipts.YarnPurchaseInput{}, fmt.Errorf("%w: qty required", shared.ErrValidation)
		}
		qty, err := decimal.NewFromString(r.Qty)
		if err != nil || qty.Sign() <= 0 {
			return receipts.YarnPurchaseInput{}, fmt.Errorf("%w: invalid qty %q", shared.ErrValidation, r.Qty)
		}
		price := decimal.Zero
		if r.Price != "" {
			price, err = decimal.NewFromString(r.Price)
			if err != nil {
				return receipts.YarnPurchaseInput{}, fmt.Errorf("%w: invalid price %q", shared.ErrValidation, r.Price)
			}
		}

		item := receipts.YarnItemInput{
			YarnTypeID: yarnType.ID,
			LotNo:      r.LotNo,
			Qty:        qty,
			Price:      price,
		}
		if brand != nil {
			item.BrandID = &brand.ID
		}
		in.Items = append(in.Items, item)
	}
	return in, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006"}

func parseDate(raw string) (time.Time, error) {
	cleaned := shared.ASCIIDigits(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, cleaned); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
}
