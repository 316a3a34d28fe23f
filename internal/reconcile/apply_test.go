package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boardsync/internal/board"
)

// fakeBoard records every call so tests can assert plan-only mode issues
// none.
type fakeBoard struct {
	mu       sync.Mutex
	calls    []string
	failWith map[string]error
	nextID   int
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{failWith: map[string]error{}}
}

func (f *fakeBoard) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failWith[call]
}

func (f *fakeBoard) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBoard) FindList(ctx context.Context, boardID, name string) (*board.List, error) {
	if err := f.record("FindList:" + name); err != nil {
		return nil, err
	}
	return &board.List{ID: "list-" + name, Name: name}, nil
}

func (f *fakeBoard) FindOrCreateLabel(ctx context.Context, boardID, name string) (*board.Label, error) {
	if err := f.record("FindOrCreateLabel:" + name); err != nil {
		return nil, err
	}
	return &board.Label{ID: "label-" + name, Name: name}, nil
}

func (f *fakeBoard) CreateCard(ctx context.Context, req board.CreateCardRequest) (*board.Card, error) {
	if err := f.record("CreateCard:" + req.Name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("card-%d", f.nextID)
	f.mu.Unlock()
	return &board.Card{ID: id, Name: req.Name, ListID: req.ListID}, nil
}

func (f *fakeBoard) UpdateCard(ctx context.Context, cardID string, req board.UpdateCardRequest) (*board.Card, error) {
	if err := f.record("UpdateCard:" + cardID); err != nil {
		return nil, err
	}
	return &board.Card{ID: cardID}, nil
}

func (f *fakeBoard) AddComment(ctx context.Context, cardID, text string) error {
	return f.record("AddComment:" + cardID)
}

func samplePlan() *Plan {
	return &Plan{
		Create: []Draft{
			{Number: 1, Title: "Task 1: Port A", Description: "d1", Labels: []string{"Backend"}},
			{Number: 2, Title: "Task 2: Port B", Description: "d2", Labels: []string{"UI"}},
		},
		Update: []Update{
			{CardID: "c9", Description: "new desc", Comment: "synced"},
		},
		Skip: []Skip{
			{CommitHash: "h1", CardID: "c1", Reason: "commit already tracked"},
		},
	}
}

func TestApplyDryRunIssuesNoCalls(t *testing.T) {
	svc := newFakeBoard()
	a := NewApplier(svc, "b1", "Backlog", 4, true, nil)

	result, err := a.Apply(context.Background(), samplePlan())
	require.NoError(t, err)

	assert.Equal(t, 0, svc.callCount(), "plan-only mode must issue zero board calls")
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
}

func TestApplyExecutesPlan(t *testing.T) {
	svc := newFakeBoard()
	a := NewApplier(svc, "b1", "Backlog", 4, false, nil)

	result, err := a.Apply(context.Background(), samplePlan())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Len(t, result.CreatedIDs, 2)

	assert.Contains(t, svc.calls, "FindList:Backlog")
	assert.Contains(t, svc.calls, "FindOrCreateLabel:Backend")
	assert.Contains(t, svc.calls, "FindOrCreateLabel:UI")
	assert.Contains(t, svc.calls, "CreateCard:Task 1: Port A")
	assert.Contains(t, svc.calls, "UpdateCard:c9")
	assert.Contains(t, svc.calls, "AddComment:c9")
}

func TestApplyCollectsPerItemFailures(t *testing.T) {
	svc := newFakeBoard()
	svc.failWith["CreateCard:Task 2: Port B"] = errors.New("boom")
	a := NewApplier(svc, "b1", "Backlog", 2, false, nil)

	result, err := a.Apply(context.Background(), samplePlan())
	require.NoError(t, err, "per-item failures never abort the batch")

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "create", result.Failures[0].Op)
	assert.Equal(t, "Task 2: Port B", result.Failures[0].Target)
}

func TestApplyCommentsOnCardCreatedInSamePlan(t *testing.T) {
	svc := newFakeBoard()
	a := NewApplier(svc, "b1", "Backlog", 4, false, nil)

	plan := &Plan{
		Create: []Draft{{Number: 1, Title: "Task 1: Port A", Description: "d1"}},
		Update: []Update{{DraftNumber: 1, Comment: "synced second commit"}},
	}
	result, err := a.Apply(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Failed)
	cardID := result.CreatedIDs[1]
	require.NotEmpty(t, cardID)
	assert.Contains(t, svc.calls, "AddComment:"+cardID)
	assert.NotContains(t, svc.calls, "UpdateCard:"+cardID,
		"the merged description shipped with the create")
}

func TestApplyDraftUpdateFailsWhenCreateFailed(t *testing.T) {
	svc := newFakeBoard()
	svc.failWith["CreateCard:Task 1: Port A"] = errors.New("boom")
	a := NewApplier(svc, "b1", "Backlog", 2, false, nil)

	plan := &Plan{
		Create: []Draft{{Number: 1, Title: "Task 1: Port A", Description: "d1"}},
		Update: []Update{{DraftNumber: 1, Comment: "synced"}},
	}
	result, err := a.Apply(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Updated)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "update", result.Failures[1].Op)
	assert.Equal(t, "task 1", result.Failures[1].Target)
}

func TestApplyMissingTargetListIsFatal(t *testing.T) {
	svc := newFakeBoard()
	svc.failWith["FindList:Backlog"] = &board.NotFoundError{Kind: "list", Name: "Backlog"}
	a := NewApplier(svc, "b1", "Backlog", 2, false, nil)

	_, err := a.Apply(context.Background(), samplePlan())
	require.Error(t, err)
	assert.True(t, board.IsNotFound(err))
}

func TestApplyWorkerBound(t *testing.T) {
	svc := newFakeBoard()
	a := NewApplier(svc, "b1", "Backlog", 0, false, nil)
	assert.Equal(t, 1, a.Workers, "worker count is clamped to at least one")

	plan := &Plan{}
	for i := 0; i < 10; i++ {
		plan.Create = append(plan.Create, Draft{
			Number: i + 1,
			Title:  fmt.Sprintf("Task %d: Port F%d", i+1, i+1),
		})
	}
	result, err := a.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Created)
}
