package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boardsync/internal/board"
	"github.com/fyrsmithlabs/boardsync/internal/change"
	"github.com/fyrsmithlabs/boardsync/internal/config"
)

// fakeSource replays fixed records.
type fakeSource struct {
	records []change.Record
}

func (f *fakeSource) Changes(ctx context.Context, window change.Window, pathFilters []string) ([]change.Record, error) {
	return f.records, nil
}

// fakeBoard is a stateful in-memory board that records every mutating
// call.
type fakeBoard struct {
	mu        sync.Mutex
	lists     map[string]string
	labels    []board.Label
	members   []board.Member
	cards     []board.Card
	mutations []string
	nextID    int
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		lists: map[string]string{
			"Backlog": "l-backlog",
			"Doing":   "l-doing",
		},
		members: []board.Member{{ID: "m1", Username: "jvega", FullName: "Jordan Vega"}},
	}
}

func (f *fakeBoard) mutate(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, call)
}

func (f *fakeBoard) Cards(ctx context.Context, boardID string) ([]board.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]board.Card{}, f.cards...), nil
}

func (f *fakeBoard) GetCard(ctx context.Context, cardID string) (*board.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.ID == cardID {
			c := c
			return &c, nil
		}
	}
	return nil, &board.NotFoundError{Kind: "card", Name: cardID}
}

func (f *fakeBoard) Members(ctx context.Context, boardID string) ([]board.Member, error) {
	return f.members, nil
}

func (f *fakeBoard) Labels(ctx context.Context, boardID string) ([]board.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]board.Label{}, f.labels...), nil
}

func (f *fakeBoard) FindList(ctx context.Context, boardID, name string) (*board.List, error) {
	if id, ok := f.lists[name]; ok {
		return &board.List{ID: id, Name: name}, nil
	}
	return nil, &board.NotFoundError{Kind: "list", Name: name}
}

func (f *fakeBoard) FindOrCreateLabel(ctx context.Context, boardID, name string) (*board.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.labels {
		if l.Name == name {
			return &l, nil
		}
	}
	f.mutations = append(f.mutations, "FindOrCreateLabel:"+name)
	label := board.Label{ID: "label-" + name, Name: name}
	f.labels = append(f.labels, label)
	return &label, nil
}

func (f *fakeBoard) CreateCard(ctx context.Context, req board.CreateCardRequest) (*board.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, "CreateCard:"+req.Name)
	f.nextID++
	c := board.Card{
		ID:        fmt.Sprintf("card-%d", f.nextID),
		Name:      req.Name,
		Desc:      req.Desc,
		ListID:    req.ListID,
		LabelIDs:  req.LabelIDs,
		MemberIDs: req.MemberIDs,
	}
	f.cards = append(f.cards, c)
	return &c, nil
}

func (f *fakeBoard) UpdateCard(ctx context.Context, cardID string, req board.UpdateCardRequest) (*board.Card, error) {
	f.mutate("UpdateCard:" + cardID)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cards {
		if f.cards[i].ID == cardID {
			if req.Desc != nil {
				f.cards[i].Desc = *req.Desc
			}
			return &f.cards[i], nil
		}
	}
	return nil, &board.NotFoundError{Kind: "card", Name: cardID}
}

func (f *fakeBoard) MoveCard(ctx context.Context, cardID, listID string) error {
	f.mutate("MoveCard:" + cardID)
	return nil
}

func (f *fakeBoard) AddComment(ctx context.Context, cardID, text string) error {
	f.mutate("AddComment:" + cardID)
	return nil
}

func (f *fakeBoard) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mutations)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Board.BoardID = "b1"
	cfg.Board.BacklogList = "Backlog"
	cfg.Board.DoingList = "Doing"
	cfg.Board.DefaultMembers = []string{"jvega"}
	cfg.Classifier.AllowPrefixes = []string{"Sources/"}
	cfg.Classifier.DenyPrefixes = []string{"Tests/"}
	cfg.Classifier.Keywords = map[string]float64{"Manager": 1.0}
	cfg.Classifier.LineThreshold = 50
	cfg.Reconcile.SimilarityThreshold = 0.5
	cfg.Reconcile.Workers = 2
	cfg.Audit.ReferenceLanguage = "swift"
	cfg.Audit.TargetLanguage = "kotlin"
	return cfg
}

func testRecords() []change.Record {
	return []change.Record{
		{
			Hash:    "a1b2c3d4e5f6",
			Author:  "Jordan Vega",
			Email:   "jvega@example.com",
			Message: "Add component fetch",
			Time:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			Files: []change.FileChange{
				{Path: "Sources/Core/CampaignManager.swift", Status: "M", Added: 80, Removed: 3,
					Patch: "+func fetchActiveComponents() async throws -> [Component] {\n"},
				{Path: "Tests/CampaignManagerTests.swift", Status: "M", Added: 40},
			},
		},
		{
			Hash:    "0f9e8d7c6b5a",
			Author:  "Jordan Vega",
			Message: "Tweak readme",
			Time:    time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
			Files: []change.FileChange{
				{Path: "README.md", Status: "M", Added: 4},
			},
		},
	}
}

func TestSyncCreatesCardFromRelevantChange(t *testing.T) {
	svc := newFakeBoard()
	e := New(testConfig(), &fakeSource{records: testRecords()}, svc, nil, nil)

	result, err := e.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Changes)
	assert.Equal(t, 1, result.Relevant, "the readme-only commit is irrelevant")
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Failed)

	require.Len(t, svc.cards, 1)
	created := svc.cards[0]
	assert.Equal(t, "Task 1: Port CampaignManager", created.Name)
	assert.Equal(t, "l-backlog", created.ListID)
	assert.Contains(t, created.Desc, "a1b2c3d4e5f6")
	assert.NotContains(t, created.Desc, "Tests/CampaignManagerTests.swift",
		"deny-listed files never reach the card")
}

func TestSyncIdempotentRerun(t *testing.T) {
	svc := newFakeBoard()
	e := New(testConfig(), &fakeSource{records: testRecords()}, svc, nil, nil)

	first, err := e.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	second, err := e.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Skipped, "hash-matched commits skip on re-run")
	assert.Len(t, svc.cards, 1)
}

func TestSyncDryRunMatchesRealRunDecisions(t *testing.T) {
	records := testRecords()

	planOnly := newFakeBoard()
	dryEngine := New(testConfig(), &fakeSource{records: records}, planOnly, nil, nil)
	dryResult, err := dryEngine.Sync(context.Background(), SyncOptions{DryRun: true})
	require.NoError(t, err)

	assert.Zero(t, planOnly.mutationCount(), "plan-only mode issues zero mutating calls")
	assert.Empty(t, planOnly.cards)

	real := newFakeBoard()
	realEngine := New(testConfig(), &fakeSource{records: records}, real, nil, nil)
	realResult, err := realEngine.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	// Identical classification and matching decisions.
	assert.Equal(t, realResult.Created, dryResult.Created)
	assert.Equal(t, realResult.Updated, dryResult.Updated)
	assert.Equal(t, realResult.Skipped, dryResult.Skipped)
	require.Len(t, dryResult.Plan.Create, 1)
	assert.Equal(t, realResult.Plan.Create[0].Title, dryResult.Plan.Create[0].Title)
}

func TestValidateAllCards(t *testing.T) {
	svc := newFakeBoard()
	e := New(testConfig(), &fakeSource{records: testRecords()}, svc, nil, nil)

	_, err := e.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	stats, issues, err := e.Validate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cards)
	assert.Empty(t, issues, "a freshly synthesized card validates clean")
	assert.True(t, stats.Clean())
}

func TestValidateUnknownTaskNumber(t *testing.T) {
	svc := newFakeBoard()
	e := New(testConfig(), &fakeSource{records: nil}, svc, nil, nil)

	_, _, err := e.Validate(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, board.IsNotFound(err))
}

func TestReviewWithoutAuditor(t *testing.T) {
	e := New(testConfig(), &fakeSource{}, newFakeBoard(), nil, nil)
	_, err := e.Review(context.Background(), "card-1")
	assert.Error(t, err)
}
