package reconcile

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/board"
)

// BoardService is the slice of the board client the applier needs.
// *board.Client satisfies it.
type BoardService interface {
	FindList(ctx context.Context, boardID, name string) (*board.List, error)
	FindOrCreateLabel(ctx context.Context, boardID, name string) (*board.Label, error)
	CreateCard(ctx context.Context, req board.CreateCardRequest) (*board.Card, error)
	UpdateCard(ctx context.Context, cardID string, req board.UpdateCardRequest) (*board.Card, error)
	AddComment(ctx context.Context, cardID, text string) error
}

// ItemFailure is one per-item failure collected during Apply. Failures
// never abort the rest of the batch.
type ItemFailure struct {
	Op     string
	Target string
	Err    error
}

// Result summarizes an applied (or previewed) plan.
type Result struct {
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Failures []ItemFailure
	// CreatedIDs maps draft task numbers to the board ids they received.
	// Empty in dry-run mode.
	CreatedIDs map[int]string
}

// Applier executes plans against the board. DryRun previews: the result
// carries the same counts but no board call is made.
type Applier struct {
	svc     BoardService
	boardID string
	// ListName is the list new cards land in.
	ListName string
	Workers  int
	DryRun   bool
	logger   *zap.Logger
}

// NewApplier creates an applier targeting listName on boardID.
func NewApplier(svc BoardService, boardID, listName string, workers int, dryRun bool, logger *zap.Logger) *Applier {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		svc:      svc,
		boardID:  boardID,
		ListName: listName,
		Workers:  workers,
		DryRun:   dryRun,
		logger:   logger.Named("apply"),
	}
}

// Apply executes the plan with a bounded worker pool. Per-card
// operations are independent, so creates and updates run concurrently
// up to the worker limit.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Skipped: len(plan.Skip), CreatedIDs: map[int]string{}}

	if a.DryRun {
		result.Created = len(plan.Create)
		result.Updated = len(plan.Update)
		a.logger.Info("dry run, no board calls issued",
			zap.Int("would_create", result.Created),
			zap.Int("would_update", result.Updated),
			zap.Int("skipped", result.Skipped))
		return result, nil
	}

	list, err := a.svc.FindList(ctx, a.boardID, a.ListName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target list %q: %w", a.ListName, err)
	}

	labelIDs, err := a.resolveLabels(ctx, plan)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.Workers)
	)
	run := func(fn func()) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn()
		}()
	}

	for _, draft := range plan.Create {
		draft := draft
		run(func() {
			created, err := a.createCard(ctx, list.ID, draft, labelIDs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, ItemFailure{
					Op:     "create",
					Target: draft.Title,
					Err:    err,
				})
				a.logger.Error("card create failed", zap.String("title", draft.Title), zap.Error(err))
				return
			}
			result.Created++
			result.CreatedIDs[draft.Number] = created.ID
		})
	}

	var pendingUpdates []Update
	for _, upd := range plan.Update {
		if upd.CardID == "" {
			pendingUpdates = append(pendingUpdates, upd)
			continue
		}
		upd := upd
		run(func() {
			err := a.updateCard(ctx, upd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, ItemFailure{
					Op:     "update",
					Target: upd.CardID,
					Err:    err,
				})
				a.logger.Error("card update failed", zap.String("card", upd.CardID), zap.Error(err))
				return
			}
			result.Updated++
		})
	}

	wg.Wait()

	// Updates targeting a card from this plan need the id its create
	// produced. The merged description shipped with the create, so only
	// the commit comment remains.
	for _, upd := range pendingUpdates {
		target := fmt.Sprintf("task %d", upd.DraftNumber)
		cardID, ok := result.CreatedIDs[upd.DraftNumber]
		if !ok {
			result.Failed++
			result.Failures = append(result.Failures, ItemFailure{
				Op:     "update",
				Target: target,
				Err:    fmt.Errorf("card for task %d was not created", upd.DraftNumber),
			})
			continue
		}
		if err := a.svc.AddComment(ctx, cardID, upd.Comment); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ItemFailure{Op: "update", Target: target, Err: err})
			a.logger.Error("card update failed", zap.String("card", cardID), zap.Error(err))
			continue
		}
		result.Updated++
	}

	a.logger.Info("plan applied",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// resolveLabels maps every label name used by the plan to a board label
// id, creating missing labels. Resolved serially before the pool starts
// so workers never race on label creation.
func (a *Applier) resolveLabels(ctx context.Context, plan *Plan) (map[string]string, error) {
	ids := map[string]string{}
	for _, draft := range plan.Create {
		for _, name := range draft.Labels {
			if _, ok := ids[name]; ok {
				continue
			}
			label, err := a.svc.FindOrCreateLabel(ctx, a.boardID, name)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve label %q: %w", name, err)
			}
			ids[name] = label.ID
		}
	}
	return ids, nil
}

func (a *Applier) createCard(ctx context.Context, listID string, draft Draft, labelIDs map[string]string) (*board.Card, error) {
	req := board.CreateCardRequest{
		ListID:    listID,
		Name:      draft.Title,
		Desc:      draft.Description,
		MemberIDs: draft.MemberIDs,
	}
	for _, name := range draft.Labels {
		if id, ok := labelIDs[name]; ok {
			req.LabelIDs = append(req.LabelIDs, id)
		}
	}
	return a.svc.CreateCard(ctx, req)
}

func (a *Applier) updateCard(ctx context.Context, upd Update) error {
	if _, err := a.svc.UpdateCard(ctx, upd.CardID, board.UpdateCardRequest{Desc: &upd.Description}); err != nil {
		return err
	}
	if upd.Comment == "" {
		return nil
	}
	return a.svc.AddComment(ctx, upd.CardID, upd.Comment)
}
