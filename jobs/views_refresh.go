package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/milltrack-erp/milltrack/internal/jobs"
)

// TaskViewsRefresh refreshes the document listing materialized views.
const TaskViewsRefresh = "views:refresh"

// NewViewsRefreshHandler wraps RefreshListingViews as an asynq handler.
func NewViewsRefreshHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, _ *asynq.Task) error {
		return metrics.Track(TaskViewsRefresh).End(RefreshListingViews(ctx, pool, logger))
	}
}

// RefreshListingViews refreshes the document listing materialized views so
// the tables stay fresh without joining on every request.
func RefreshListingViews(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return nil
	}
	views := []string{"yarn_purchase_list_view", "greige_receipt_list_view"}
	for _, v := range views {
		if _, err := pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY `+v); err != nil {
			if logger != nil {
				logger.Error("refresh listing view", slog.String("view", v), slog.Any("error", err))
			}
			return err
		}
	}
	if logger != nil {
		logger.Info("refreshed listing views", slog.Int("count", len(views)))
	}
	return nil
}
