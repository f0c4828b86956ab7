package workflow

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

type memoryWorkflowRepo struct {
	requests map[string]ChangeRequest
}

func newMemoryWorkflowRepo() *memoryWorkflowRepo {
	return &memoryWorkflowRepo{requests: make(map[string]ChangeRequest)}
}

func (m *memoryWorkflowRepo) Insert(_ context.Context, cr ChangeRequest) error {
	if _, ok := m.requests[cr.ID]; ok {
		return nil
	}
	m.requests[cr.ID] = cr
	return nil
}

func (m *memoryWorkflowRepo) Get(_ context.Context, id string) (ChangeRequest, error) {
	cr, ok := m.requests[id]
	if !ok {
		return ChangeRequest{}, shared.ErrNotFound
	}
	return cr, nil
}

func (m *memoryWorkflowRepo) MarkResolved(_ context.Context, id string, status Status, reason string) error {
	cr, ok := m.requests[id]
	if !ok {
		return shared.ErrNotFound
	}
	if cr.Status != StatusPending {
		return shared.ErrConflict
	}
	cr.Status = status
	cr.ResolutionReason = reason
	m.requests[id] = cr
	return nil
}

func (m *memoryWorkflowRepo) ListPending(_ context.Context, limit, offset int) ([]ChangeRequest, int, error) {
	var out []ChangeRequest
	for _, cr := range m.requests {
		if cr.Status == StatusPending {
			out = append(out, cr)
		}
	}
	return out, len(out), nil
}

type call struct {
	names  []string
	shapes []map[string]any
}

// fakeDispatcher returns queued results in order and records every call.
type fakeDispatcher struct {
	calls   []call
	results []any
	errs    []error
}

func (f *fakeDispatcher) Invoke(_ context.Context, names []string, shapes []map[string]any) (dispatch.Result, error) {
	f.calls = append(f.calls, call{names: names, shapes: shapes})
	i := len(f.calls) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var raw any
	if i < len(f.results) {
		raw = f.results[i]
	}
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{ResolvedName: names[0], Raw: raw}, nil
}

type nullHistory struct{ entries []HistoryEntry }

func (n *nullHistory) Record(_ context.Context, e HistoryEntry) error {
	n.entries = append(n.entries, e)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSubmission() Submission {
	return Submission{
		Family:    YarnPurchaseFamily(),
		Operation: OpCreate,
		Payload:   map[string]any{"supplier_id": 7},
	}
}

func TestSubmitManagerCommits(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	disp := &fakeDispatcher{results: []any{map[string]any{"change_request_id": "cr-1"}, "ok"}}
	hist := &nullHistory{}
	svc := NewService(repo, disp, hist, nil, discardLogger())

	res, err := svc.Submit(context.Background(), testSubmission(), shared.Identity{UserID: 1, Manager: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, res.Outcome)
	require.Equal(t, "cr-1", res.RequestID)

	// Submit then self-approve, nothing else.
	require.Len(t, disp.calls, 2)
	require.Equal(t, YarnPurchaseFamily().Approve, disp.calls[1].names)

	cr, err := repo.Get(context.Background(), "cr-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, cr.Status)
	require.Len(t, hist.entries, 2)
	require.Equal(t, HistorySubmit, hist.entries[0].Action)
	require.Equal(t, HistoryApprove, hist.entries[1].Action)
}

func TestSubmitNonManagerStaysPending(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	disp := &fakeDispatcher{results: []any{map[string]any{"id": "cr-2"}}}
	svc := NewService(repo, disp, &nullHistory{}, nil, discardLogger())

	res, err := svc.Submit(context.Background(), testSubmission(), shared.Identity{UserID: 2})
	require.NoError(t, err)
	require.Equal(t, OutcomePendingReview, res.Outcome)
	require.Equal(t, "cr-2", res.RequestID)

	// No self-approval attempt for non-managers.
	require.Len(t, disp.calls, 1)

	cr, err := repo.Get(context.Background(), "cr-2")
	require.NoError(t, err)
	require.Equal(t, StatusPending, cr.Status)
}

func TestSubmitManagerDegradedOnApprovalFailure(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	disp := &fakeDispatcher{
		results: []any{map[string]any{"change_request_id": "cr-3"}, nil},
		errs:    []error{nil, errors.New("approval backend down")},
	}
	svc := NewService(repo, disp, &nullHistory{}, nil, discardLogger())

	res, err := svc.Submit(context.Background(), testSubmission(), shared.Identity{UserID: 1, Manager: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCommittedPendingApproval, res.Outcome)
	require.Equal(t, "cr-3", res.RequestID)

	// The submission is not rolled back; the request remains pending.
	cr, err := repo.Get(context.Background(), "cr-3")
	require.NoError(t, err)
	require.Equal(t, StatusPending, cr.Status)
}

func TestSubmitValidationFailureSkipsDispatch(t *testing.T) {
	disp := &fakeDispatcher{}
	svc := NewService(newMemoryWorkflowRepo(), disp, &nullHistory{}, nil, discardLogger())

	sub := testSubmission()
	sub.Validate = func() error { return errors.New("total is 99.99") }

	_, err := svc.Submit(context.Background(), sub, shared.Identity{UserID: 1, Manager: true})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, disp.calls)
}

func TestSubmitDispatchErrorPropagates(t *testing.T) {
	rejection := &dispatch.RejectionError{Procedure: "submit_yarn_purchase", Err: errors.New("duplicate note")}
	disp := &fakeDispatcher{errs: []error{rejection}}
	svc := NewService(newMemoryWorkflowRepo(), disp, &nullHistory{}, nil, discardLogger())

	_, err := svc.Submit(context.Background(), testSubmission(), shared.Identity{UserID: 1, Manager: true})
	var re *dispatch.RejectionError
	require.ErrorAs(t, err, &re)
}

func TestApproveRequiresManager(t *testing.T) {
	svc := NewService(newMemoryWorkflowRepo(), &fakeDispatcher{}, &nullHistory{}, nil, discardLogger())
	err := svc.Approve(context.Background(), YarnPurchaseFamily(), "cr-1", shared.Identity{UserID: 2})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestApproveResolvedRequestConflicts(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	repo.requests["cr-9"] = ChangeRequest{ID: "cr-9", Status: StatusApproved}
	disp := &fakeDispatcher{}
	svc := NewService(repo, disp, &nullHistory{}, nil, discardLogger())

	err := svc.Approve(context.Background(), YarnPurchaseFamily(), "cr-9", shared.Identity{UserID: 1, Manager: true})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, disp.calls)

	// Status is unchanged after the failed duplicate attempt.
	require.Equal(t, StatusApproved, repo.requests["cr-9"].Status)
}

func TestApproveUnknownRequest(t *testing.T) {
	svc := NewService(newMemoryWorkflowRepo(), &fakeDispatcher{}, &nullHistory{}, nil, discardLogger())
	err := svc.Approve(context.Background(), YarnPurchaseFamily(), "ghost", shared.Identity{UserID: 1, Manager: true})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRejectRecordsReason(t *testing.T) {
	repo := newMemoryWorkflowRepo()
	repo.requests["cr-4"] = ChangeRequest{ID: "cr-4", Status: StatusPending}
	disp := &fakeDispatcher{}
	hist := &nullHistory{}
	svc := NewService(repo, disp, hist, nil, discardLogger())

	err := svc.Reject(context.Background(), GreigeReceiptFamily(), "cr-4", "wrong factory", shared.Identity{UserID: 1, Manager: true})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, repo.requests["cr-4"].Status)
	require.Equal(t, "wrong factory", repo.requests["cr-4"].ResolutionReason)
	require.Equal(t, GreigeReceiptFamily().Reject, disp.calls[0].names)
	require.Len(t, hist.entries, 1)
	require.Equal(t, HistoryReject, hist.entries[0].Action)
}
