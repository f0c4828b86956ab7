package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryAction enumerates change-request history actions.
type HistoryAction string

const (
	HistorySubmit  HistoryAction = "SUBMIT"
	HistoryApprove HistoryAction = "APPROVE"
	HistoryReject  HistoryAction = "REJECT"
)

// HistoryEntry represents a single disposition record.
type HistoryEntry struct {
	ID        int64
	Family    string
	RequestID string
	ActorID   int64
	Action    HistoryAction
	Note      string
	At        time.Time
}

// HistoryRecorder persists change-request history for audit purposes.
type HistoryRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHistoryRecorder constructs HistoryRecorder.
func NewHistoryRecorder(pool *pgxpool.Pool, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{pool: pool, logger: logger}
}

// Record writes a history entry.
func (r *HistoryRecorder) Record(ctx context.Context, entry HistoryEntry) error {
	if r == nil {
		return errors.New("history recorder not initialised")
	}
	if entry.Family == "" || entry.RequestID == "" || entry.Action == "" {
		return errors.New("history entry requires family/request/action")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO change_request_history (family, request_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.Family, entry.RequestID, entry.ActorID, string(entry.Action), entry.Note, entry.At)
	if err != nil {
		r.logger.Error("record history", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns history for one request, oldest first.
func (r *HistoryRecorder) List(ctx context.Context, family, requestID string) ([]HistoryEntry, error) {
	if r == nil {
		return nil, errors.New("history recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, family, request_id, actor_id, action, note, at
FROM change_request_history WHERE family = $1 AND request_id = $2 ORDER BY at ASC`, family, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var (
			e      HistoryEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.Family, &e.RequestID, &e.ActorID, &action, &e.Note, &e.At); err != nil {
			return nil, err
		}
		e.Action = HistoryAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
