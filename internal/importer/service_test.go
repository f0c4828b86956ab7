package importer

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
)

type memoryCatalogRepo struct {
	entities map[catalog.Kind][]catalog.Entity
	brands   map[int64][]catalog.Brand
	nextID   int64
	creates  map[catalog.Kind]int
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{
		entities: make(map[catalog.Kind][]catalog.Entity),
		brands:   make(map[int64][]catalog.Brand),
		creates:  make(map[catalog.Kind]int),
	}
}

func (r *memoryCatalogRepo) ListActive(_ context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	return r.entities[kind], nil
}

func (r *memoryCatalogRepo) LookupByName(_ context.Context, kind catalog.Kind, name string) ([]catalog.Entity, error) {
	var out []catalog.Entity
	for _, e := range r.entities[kind] {
		if strings.EqualFold(e.Name, name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryCatalogRepo) Create(_ context.Context, kind catalog.Kind, name string) (catalog.Entity, error) {
	r.creates[kind]++
	r.nextID++
	e := catalog.Entity{ID: r.nextID, Name: name, IsActive: true}
	r.entities[kind] = append(r.entities[kind], e)
	return e, nil
}

func (r *memoryCatalogRepo) Deactivate(context.Context, catalog.Kind, int64) error { return nil }

func (r *memoryCatalogRepo) ListBrands(_ context.Context, yarnTypeID int64) ([]catalog.Brand, error) {
	return r.brands[yarnTypeID], nil
}

func (r *memoryCatalogRepo) LookupBrand(_ context.Context, yarnTypeID int64, name string) ([]catalog.Brand, error) {
	var out []catalog.Brand
	for _, b := range r.brands[yarnTypeID] {
		if strings.EqualFold(b.Name, name) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryCatalogRepo) CreateBrand(_ context.Context, yarnTypeID int64, name string) (catalog.Brand, error) {
	r.nextID++
	b := catalog.Brand{ID: r.nextID, YarnTypeID: yarnTypeID, Name: name, IsActive: true}
	r.brands[yarnTypeID] = append(r.brands[yarnTypeID], b)
	return b, nil
}

func (r *memoryCatalogRepo) ListRecipes(context.Context) (map[int64]composition.Recipe, error) {
	return map[int64]composition.Recipe{}, nil
}

func (r *memoryCatalogRepo) CreateGreigeType(_ context.Context, name string, components []composition.Component) (catalog.Entity, error) {
	return r.Create(context.Background(), catalog.KindGreigeType, name)
}

var _ catalog.RepositoryPort = (*memoryCatalogRepo)(nil)

type captureReceipts struct {
	inputs []receipts.YarnPurchaseInput
	errAt  int
}

func (c *captureReceipts) SubmitYarnPurchase(_ context.Context, in receipts.YarnPurchaseInput, _ shared.Identity) (workflow.SubmitResult, error) {
	if c.errAt > 0 && len(c.inputs)+1 == c.errAt {
		return workflow.SubmitResult{}, shared.ErrConflict
	}
	c.inputs = append(c.inputs, in)
	return workflow.SubmitResult{RequestID: "cr", Outcome: workflow.OutcomePendingReview}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const importHeader = "supplier\tfactory\tnote_no\tnote_date\tyarn_type\tbrand\tlot\tqty\tprice\n"

func TestRunGroupsRowsIntoDocuments(t *testing.T) {
	raw := importHeader +
		"Alpha\tNorth\t100\t2026-03-14\tCotton\tLotus\tL1\t500\t4.25\n" +
		"Alpha\tNorth\t100\t2026-03-14\tPoly\t\t\t200\t3.10\n" +
		"Alpha\tNorth\t101\t2026-03-14\tCotton\t\t\t100\t4.25\n"

	sink := &captureReceipts{}
	svc := NewService(newMemoryCatalogRepo(), sink, discardLogger())

	report, err := svc.Run(context.Background(), raw, shared.Identity{UserID: 5})
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Equal(t, 2, report.Processed)

	// Two lines sharing (supplier, factory, note, date) become one document
	// with two items; the different note number starts a second document.
	require.Len(t, sink.inputs, 2)
	require.Len(t, sink.inputs[0].Items, 2)
	require.Len(t, sink.inputs[1].Items, 1)
	require.Equal(t, "100", sink.inputs[0].NoteNo)
	require.Equal(t, "101", sink.inputs[1].NoteNo)
}

func TestRunMemoizesEntityCreation(t *testing.T) {
	raw := importHeader +
		"New Supplier\tNorth\t100\t2026-03-14\tCotton\t\t\t500\t4.25\n" +
		"new   SUPPLIER\tNorth\t101\t2026-03-14\tCotton\t\t\t200\t4.25\n"

	repo := newMemoryCatalogRepo()
	svc := NewService(repo, &captureReceipts{}, discardLogger())

	_, err := svc.Run(context.Background(), raw, shared.Identity{UserID: 5})
	require.NoError(t, err)
	require.Equal(t, 1, repo.creates[catalog.KindSupplier])
	require.Equal(t, 1, repo.creates[catalog.KindYarnType])
}

func TestRunFailStopReportsProgress(t *testing.T) {
	// Second group has a non-numeric quantity.
	raw := importHeader +
		"Alpha\tNorth\t100\t2026-03-14\tCotton\t\t\t500\t4.25\n" +
		"Alpha\tNorth\t101\t2026-03-14\tCotton\t\t\tabc\t4.25\n" +
		"Alpha\tNorth\t102\t2026-03-14\tCotton\t\t\t300\t4.25\n"

	sink := &captureReceipts{}
	svc := NewService(newMemoryCatalogRepo(), sink, discardLogger())

	report, err := svc.Run(context.Background(), raw, shared.Identity{UserID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "processed 1 of 3")

	// The malformed group and everything after it never reach submission.
	require.Equal(t, 1, report.Processed)
	require.Len(t, sink.inputs, 1)
}

func TestRunRequiresNoteDate(t *testing.T) {
	raw := importHeader + "Alpha\tNorth\t100\t\tCotton\t\t\t500\t4.25\n"
	svc := NewService(newMemoryCatalogRepo(), &captureReceipts{}, discardLogger())

	_, err := svc.Run(context.Background(), raw, shared.Identity{UserID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRunStopsOnSubmissionFailure(t *testing.T) {
	raw := importHeader +
		"Alpha\tNorth\t100\t2026-03-14\tCotton\t\t\t500\t4.25\n" +
		"Alpha\tNorth\t101\t2026-03-14\tCotton\t\t\t200\t4.25\n"

	sink := &captureReceipts{errAt: 2}
	svc := NewService(newMemoryCatalogRepo(), sink, discardLogger())

	report, err := svc.Run(context.Background(), raw, shared.Identity{UserID: 5})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, report.Processed)
}
