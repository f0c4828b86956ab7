package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milltrack-erp/milltrack/internal/shared"
)

// RepositoryPort describes the lifecycle store for change requests.
type RepositoryPort interface {
	Insert(ctx context.Context, cr ChangeRequest) error
	Get(ctx context.Context, id string) (ChangeRequest, error)
	MarkResolved(ctx context.Context, id string, status Status, reason string) error
	ListPending(ctx context.Context, limit, offset int) ([]ChangeRequest, int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores the lifecycle record for a freshly submitted request.
func (r *Repository) Insert(ctx context.Context, cr ChangeRequest) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO change_requests
(id, family, operation, target_document_id, payload, status, requested_by, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, COALESCE($8, NOW()))
ON CONFLICT (id) DO NOTHING`,
		cr.ID, cr.Family, string(cr.Operation), cr.TargetDocumentID,
		cr.PayloadSnapshot, string(cr.Status), cr.RequestedBy, cr.CreatedAt)
	return err
}

// Get loads one change request.
func (r *Repository) Get(ctx context.Context, id string) (ChangeRequest, error) {
	var (
		cr        ChangeRequest
		operation string
		status    string
		target    *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, family, operation, target_document_id, payload,
status, COALESCE(resolution_reason, ''), requested_by, created_at, resolved_at
FROM change_requests WHERE id = $1`, id).Scan(
		&cr.ID, &cr.Family, &operation, &target, &cr.PayloadSnapshot,
		&status, &cr.ResolutionReason, &cr.RequestedBy, &cr.CreatedAt, &cr.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChangeRequest{}, shared.ErrNotFound
		}
		return ChangeRequest{}, err
	}
	cr.Operation = Operation(operation)
	cr.Status = Status(status)
	if target != nil {
		cr.TargetDocumentID = *target
	}
	return cr, nil
}

// MarkResolved transitions a pending request to approved or rejected. A
// request that is no longer pending is left untouched and reported as a
// conflict; this is the idempotency guard.
func (r *Repository) MarkResolved(ctx context.Context, id string, status Status, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE change_requests
SET status = $2, resolution_reason = NULLIF($3, ''), resolved_at = $4
WHERE id = $1 AND status = 'pending'`,
		id, string(status), reason, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return shared.ErrConflict
	}
	return nil
}

// ListPending returns pending requests, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit, offset int) ([]ChangeRequest, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM change_requests WHERE status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, family, operation, target_document_id, payload,
status, COALESCE(resolution_reason, ''), requested_by, created_at, resolved_at
FROM change_requests WHERE status = 'pending' ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ChangeRequest
	for rows.Next() {
		var (
			cr        ChangeRequest
			operation string
			status    string
			target    *string
		)
		if err := rows.Scan(&cr.ID, &cr.Family, &operation, &target, &cr.PayloadSnapshot,
			&status, &cr.ResolutionReason, &cr.RequestedBy, &cr.CreatedAt, &cr.ResolvedAt); err != nil {
			return nil, 0, err
		}
		cr.Operation = Operation(operation)
		cr.Status = Status(status)
		if target != nil {
			cr.TargetDocumentID = *target
		}
		out = append(out, cr)
	}
	return out, total, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
