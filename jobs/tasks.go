package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/milltrack-erp/milltrack/internal/importer"
	jobmetrics "github.com/milltrack-erp/milltrack/internal/jobs"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskImportRun executes a bulk receipt import in the background.
	TaskImportRun = "import:run"
)

// ImportRunPayload carries one pasted import text plus the identity it runs
// under. The manager flag is frozen at enqueue time so a later role change
// does not alter an already queued run.
type ImportRunPayload struct {
	Raw     string `json:"raw"`
	UserID  int64  `json:"user_id"`
	Manager bool   `json:"manager"`
}

// NewImportRunTask constructs an import task.
func NewImportRunTask(payload ImportRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportRun, data, asynq.Queue(QueueDefault)), nil
}

// NewImportRunHandler binds the import service into an asynq handler.
// Validation failures skip retry: re-running malformed text cannot succeed.
func NewImportRunHandler(svc *importer.Service, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ImportRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskImportRun)
		actor := shared.Identity{UserID: payload.UserID, Manager: payload.Manager}
		report, err := svc.Run(ctx, payload.Raw, actor)
		if err != nil {
			_ = tracker.End(err)
			metrics.AddImportGroups("committed", report.Processed)
			metrics.AddImportGroups("skipped", report.Total-report.Processed)
			logger.Warn("background import failed",
				slog.Int("processed", report.Processed), slog.Int("total", report.Total),
				slog.Any("error", err))
			if errors.Is(err, shared.ErrValidation) {
				return asynq.SkipRetry
			}
			return err
		}
		_ = tracker.End(nil)
		metrics.AddImportGroups("committed", report.Processed)
		logger.Info("background import done",
			slog.Int("processed", report.Processed), slog.Int("total", report.Total))
		return nil
	}
}
