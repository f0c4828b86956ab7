package receipts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milltrack-erp/milltrack/internal/shared"
)

// RepositoryPort reads the document listing and preview views. Writes go
// through the backend procedures, never through this port.
type RepositoryPort interface {
	List(ctx context.Context, family Family, limit, offset int) ([]DocumentSummary, int, error)
	Get(ctx context.Context, family Family, id int64) (DocumentSummary, error)
}

// Repository provides PostgreSQL backed read access over the joined views.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func viewName(family Family) (string, error) {
	switch family {
	case FamilyYarnPurchase:
		return "yarn_purchase_list_view", nil
	case FamilyGreigeReceipt:
		return "greige_receipt_list_view", nil
	default:
		return "", fmt.Errorf("receipts: %w: unknown family %q", shared.ErrValidation, family)
	}
}

// List returns one page of the family's listing view, newest first.
func (r *Repository) List(ctx context.Context, family Family, limit, offset int) ([]DocumentSummary, int, error) {
	view, err := viewName(family)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, view)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, note_no, note_date, counterparty_name, recipient_name, status, item_count, grand_total
FROM %s ORDER BY note_date DESC, id DESC LIMIT $1 OFFSET $2`, view), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var d DocumentSummary
		if err := rows.Scan(&d.ID, &d.NoteNo, &d.NoteDate, &d.CounterpartyName,
			&d.RecipientName, &d.Status, &d.ItemCount, &d.GrandTotal); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Get returns one document row from the listing view.
func (r *Repository) Get(ctx context.Context, family Family, id int64) (DocumentSummary, error) {
	view, err := viewName(family)
	if err != nil {
		return DocumentSummary{}, err
	}
	var d DocumentSummary
	err = r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, note_no, note_date, counterparty_name, recipient_name, status, item_count, grand_total
FROM %s WHERE id = $1`, view), id).Scan(&d.ID, &d.NoteNo, &d.NoteDate, &d.CounterpartyName,
		&d.RecipientName, &d.Status, &d.ItemCount, &d.GrandTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return DocumentSummary{}, shared.ErrNotFound
	}
	if err != nil {
		return DocumentSummary{}, err
	}
	return d, nil
}

var _ RepositoryPort = (*Repository)(nil)
