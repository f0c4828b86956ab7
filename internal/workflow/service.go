package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// DispatcherPort abstracts candidate-procedure invocation.
type DispatcherPort interface {
	Invoke(ctx context.Context, names []string, shapes []map[string]any) (dispatch.Result, error)
}

// HistoryPort records dispositions.
type HistoryPort interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// AuditPort records workflow actions in the audit log.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts submission outcomes.
type MetricsPort interface {
	ObserveSubmission(family, outcome string)
}

// Submission describes one mutation heading into the workflow.
type Submission struct {
	Family           ProcedureFamily
	Operation        Operation
	TargetDocumentID string
	Payload          map[string]any
	// Validate runs local checks before any remote call. A failure aborts
	// the submission with no partial application.
	Validate func() error
}

// Service is the single implementation of the role-gated transition rule.
type Service struct {
	repo       RepositoryPort
	dispatcher DispatcherPort
	history    HistoryPort
	audit      AuditPort
	metrics    MetricsPort
	logger     *slog.Logger
}

// NewService constructs the workflow service.
func NewService(repo RepositoryPort, dispatcher DispatcherPort, history HistoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, history: history, audit: audit, logger: logger}
}

// WithMetrics attaches an outcome counter.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// Submit runs one mutation through the workflow. Validation failures are
// caught before any network interaction. A manager's submission commits and
// immediately self-approves; when the self-approval call fails the commit is
// not rolled back and the degraded outcome is reported instead. Everyone
// else stops at PENDING_REVIEW.
func (s *Service) Submit(ctx context.Context, sub Submission, actor shared.Identity) (SubmitResult, error) {
	if sub.Validate != nil {
		if err := sub.Validate(); err != nil {
			return SubmitResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
	}

	names := sub.Family.Candidates(sub.Operation)
	res, err := s.dispatcher.Invoke(ctx, names, payloadShapes(sub.Payload))
	if err != nil {
		return SubmitResult{}, err
	}

	requestID := dispatch.ExtractID(res.Raw)
	if requestID != "" {
		snapshot, err := json.Marshal(sub.Payload)
		if err != nil {
			return SubmitResult{}, err
		}
		cr := ChangeRequest{
			ID:               requestID,
			Family:           sub.Family.Name,
			Operation:        sub.Operation,
			TargetDocumentID: sub.TargetDocumentID,
			PayloadSnapshot:  snapshot,
			Status:           StatusPending,
			RequestedBy:      actor.UserID,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.repo.Insert(ctx, cr); err != nil {
			s.logger.Warn("insert change request", slog.Any("error", err))
		}
		s.recordHistory(ctx, sub.Family.Name, requestID, actor.UserID, HistorySubmit, "")
	}

	if !actor.Manager || requestID == "" {
		s.observe(sub.Family.Name, OutcomePendingReview)
		return SubmitResult{RequestID: requestID, Outcome: OutcomePendingReview}, nil
	}

	// Manager fast path: self-approve the request that was just created.
	if _, err := s.dispatcher.Invoke(ctx, sub.Family.Approve, idShapes(requestID)); err != nil {
		s.logger.Warn("self-approval failed, request left pending",
			slog.String("request_id", requestID), slog.Any("error", err))
		s.observe(sub.Family.Name, OutcomeCommittedPendingApproval)
		return SubmitResult{RequestID: requestID, Outcome: OutcomeCommittedPendingApproval}, nil
	}

	if err := s.repo.MarkResolved(ctx, requestID, StatusApproved, ""); err != nil {
		s.logger.Warn("mark approved", slog.String("request_id", requestID), slog.Any("error", err))
	}
	s.recordHistory(ctx, sub.Family.Name, requestID, actor.UserID, HistoryApprove, "self-approved")
	s.recordAudit(ctx, actor, "CR_COMMIT", requestID, map[string]any{"operation": string(sub.Operation)})
	s.observe(sub.Family.Name, OutcomeCommitted)
	return SubmitResult{RequestID: requestID, Outcome: OutcomeCommitted}, nil
}

// Approve resolves a pending request. Manager only; approving an already
// resolved request reports a conflict and leaves its status unchanged.
func (s *Service) Approve(ctx context.Context, family ProcedureFamily, requestID string, actor shared.Identity) error {
	if !actor.Manager {
		return shared.ErrForbidden
	}
	cr, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if cr.Status != StatusPending {
		return shared.ErrConflict
	}

	if _, err := s.dispatcher.Invoke(ctx, family.Approve, idShapes(requestID)); err != nil {
		return err
	}
	if err := s.repo.MarkResolved(ctx, requestID, StatusApproved, ""); err != nil {
		return err
	}
	s.recordHistory(ctx, family.Name, requestID, actor.UserID, HistoryApprove, "")
	s.recordAudit(ctx, actor, "CR_APPROVE", requestID, nil)
	return nil
}

// Reject resolves a pending request with an optional reason.
func (s *Service) Reject(ctx context.Context, family ProcedureFamily, requestID, reason string, actor shared.Identity) error {
	if !actor.Manager {
		return shared.ErrForbidden
	}
	cr, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if cr.Status != StatusPending {
		return shared.ErrConflict
	}

	if _, err := s.dispatcher.Invoke(ctx, family.Reject, rejectShapes(requestID, reason)); err != nil {
		return err
	}
	if err := s.repo.MarkResolved(ctx, requestID, StatusRejected, reason); err != nil {
		return err
	}
	s.recordHistory(ctx, family.Name, requestID, actor.UserID, HistoryReject, reason)
	s.recordAudit(ctx, actor, "CR_REJECT", requestID, map[string]any{"reason": reason})
	return nil
}

// ListPending returns the review queue.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]ChangeRequest, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

func (s *Service) observe(family string, outcome Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveSubmission(family, string(outcome))
	}
}

func (s *Service) recordHistory(ctx context.Context, family, requestID string, actorID int64, action HistoryAction, note string) {
	if s.history == nil {
		return
	}
	entry := HistoryEntry{Family: family, RequestID: requestID, ActorID: actorID, Action: action, Note: note}
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Warn("record history", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, action, requestID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "change_request", EntityID: requestID, Meta: meta}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
