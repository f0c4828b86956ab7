// Package workflow drives a change request from submission through manager
// disposition. Manager submissions commit and self-approve in one operation;
// everyone else queues for review.
package workflow

import (
	"encoding/json"
	"time"
)

// Operation enumerates the reviewed mutations.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Status is the durable state of a change request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Outcome is the user-visible result of one submission.
type Outcome string

const (
	// OutcomeCommitted: manager fast path, submit and self-approval both succeeded.
	OutcomeCommitted Outcome = "COMMITTED"
	// OutcomePendingReview: queued for a manager to approve or reject.
	OutcomePendingReview Outcome = "PENDING_REVIEW"
	// OutcomeCommittedPendingApproval: the commit succeeded but the immediate
	// self-approval failed. Deliberately not rolled back; the request stays
	// pending and both the id and the degraded state are surfaced.
	OutcomeCommittedPendingApproval Outcome = "COMMITTED_PENDING_APPROVAL"
)

// ChangeRequest is the durable record of one proposed mutation. The payload
// is a snapshot, not a live reference: later master-data edits never alter a
// pending request's content. Only approval or rejection mutates it.
type ChangeRequest struct {
	ID               string          `json:"id"`
	Family           string          `json:"family"`
	Operation        Operation       `json:"operation"`
	TargetDocumentID string          `json:"target_document_id,omitempty"`
	PayloadSnapshot  json.RawMessage `json:"payload_snapshot"`
	Status           Status          `json:"status"`
	ResolutionReason string          `json:"resolution_reason,omitempty"`
	RequestedBy      int64           `json:"requested_by"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

// SubmitResult reports what happened to a submission.
type SubmitResult struct {
	RequestID string  `json:"request_id,omitempty"`
	Outcome   Outcome `json:"outcome"`
}
