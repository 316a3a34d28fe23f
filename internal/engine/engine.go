// Package engine orchestrates a synchronization run: ingest changes,
// classify files, reconcile against the board snapshot, apply the plan,
// and optionally audit cards. Each run gets a uuid and works against a
// single snapshot of the board fetched at the start.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/audit"
	"github.com/fyrsmithlabs/boardsync/internal/board"
	"github.com/fyrsmithlabs/boardsync/internal/card"
	"github.com/fyrsmithlabs/boardsync/internal/change"
	"github.com/fyrsmithlabs/boardsync/internal/classify"
	"github.com/fyrsmithlabs/boardsync/internal/config"
	"github.com/fyrsmithlabs/boardsync/internal/guide"
	"github.com/fyrsmithlabs/boardsync/internal/reconcile"
)

// BoardService is the full board surface the engine consumes.
// *board.Client satisfies it.
type BoardService interface {
	Cards(ctx context.Context, boardID string) ([]board.Card, error)
	GetCard(ctx context.Context, cardID string) (*board.Card, error)
	Members(ctx context.Context, boardID string) ([]board.Member, error)
	Labels(ctx context.Context, boardID string) ([]board.Label, error)
	FindList(ctx context.Context, boardID, name string) (*board.List, error)
	FindOrCreateLabel(ctx context.Context, boardID, name string) (*board.Label, error)
	CreateCard(ctx context.Context, req board.CreateCardRequest) (*board.Card, error)
	UpdateCard(ctx context.Context, cardID string, req board.UpdateCardRequest) (*board.Card, error)
	MoveCard(ctx context.Context, cardID, listID string) error
	AddComment(ctx context.Context, cardID, text string) error
}

// Engine wires the run pipeline together.
type Engine struct {
	cfg        *config.Config
	source     change.Source
	classifier *classify.Classifier
	reconciler *reconcile.Reconciler
	svc        BoardService
	auditor    *audit.Auditor
	logger     *zap.Logger
}

// New creates an engine. auditor may be nil when the run never reviews.
func New(cfg *config.Config, source change.Source, svc BoardService, auditor *audit.Auditor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		classifier: classify.New(classify.Rules{
			AllowPrefixes: cfg.Classifier.AllowPrefixes,
			DenyPrefixes:  cfg.Classifier.DenyPrefixes,
			Keywords:      cfg.Classifier.Keywords,
			LineThreshold: cfg.Classifier.LineThreshold,
		}),
		reconciler: reconcile.New(reconcile.Config{
			SimilarityThreshold: cfg.Reconcile.SimilarityThreshold,
			DefaultMembers:      cfg.Board.DefaultMembers,
			ReferenceLanguage:   cfg.Audit.ReferenceLanguage,
			TargetLanguage:      cfg.Audit.TargetLanguage,
		}, logger),
		svc:     svc,
		auditor: auditor,
		logger:  logger.Named("engine"),
	}
}

// SyncOptions tune one synchronization run.
type SyncOptions struct {
	Since time.Time
	Until time.Time
	// DryRun previews the plan without issuing any mutating board call.
	DryRun bool
	// UpdateGuide appends guide sections for created cards.
	UpdateGuide bool
}

// SyncResult summarizes one run.
type SyncResult struct {
	RunID    string
	Changes  int
	Relevant int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Failures []reconcile.ItemFailure
	Plan     *reconcile.Plan
}

// Sync runs one synchronization pass.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("synchronization run started",
		zap.Time("since", opts.Since),
		zap.Bool("dry_run", opts.DryRun))

	records, err := e.source.Changes(ctx, change.Window{Since: opts.Since, Until: opts.Until}, e.cfg.Classifier.AllowPrefixes)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest changes: %w", err)
	}

	changes := e.classifyRecords(records)

	existing, members, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	plan := e.reconciler.Synchronize(changes, existing, members)

	applier := reconcile.NewApplier(e.svc, e.cfg.Board.BoardID, e.cfg.Board.BacklogList,
		e.cfg.Reconcile.Workers, opts.DryRun, logger)
	applied, err := applier.Apply(ctx, plan)
	if err != nil {
		return nil, err
	}

	if opts.UpdateGuide && !opts.DryRun && e.cfg.Repo.GuidePath != "" {
		if err := e.appendGuideSections(plan, logger); err != nil {
			logger.Warn("guide update failed", zap.Error(err))
		}
	}

	result := &SyncResult{
		RunID:    runID,
		Changes:  len(records),
		Relevant: len(changes),
		Created:  applied.Created,
		Updated:  applied.Updated,
		Skipped:  applied.Skipped,
		Failed:   applied.Failed,
		Failures: applied.Failures,
		Plan:     plan,
	}
	logger.Info("synchronization run finished",
		zap.Int("changes", result.Changes),
		zap.Int("relevant", result.Relevant),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// classifyRecords keeps only commits with at least one relevant file.
func (e *Engine) classifyRecords(records []change.Record) []reconcile.Change {
	var changes []reconcile.Change
	for _, rec := range records {
		ch := reconcile.Change{Record: rec}
		for _, fc := range rec.Files {
			res := e.classifier.Classify(fc)
			if !res.Relevant {
				continue
			}
			ch.Files = append(ch.Files, reconcile.File{
				FileChange: fc,
				Score:      res.Score,
				Keywords:   res.MatchedKeywords,
			})
		}
		if len(ch.Files) > 0 {
			changes = append(changes, ch)
		}
	}
	return changes
}

// snapshot fetches cards, labels and members once for the run.
func (e *Engine) snapshot(ctx context.Context) ([]card.TaskCard, []board.Member, error) {
	boardID := e.cfg.Board.BoardID

	labels, err := e.svc.Labels(ctx, boardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	labelNames := make(map[string]string, len(labels))
	for _, l := range labels {
		labelNames[l.ID] = l.Name
	}

	rawCards, err := e.svc.Cards(ctx, boardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch cards: %w", err)
	}
	existing := make([]card.TaskCard, 0, len(rawCards))
	for _, bc := range rawCards {
		existing = append(existing, reconcile.CardFromBoard(bc, resolveLabels(bc.LabelIDs, labelNames)))
	}

	members, err := e.svc.Members(ctx, boardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch members: %w", err)
	}
	return existing, members, nil
}

func resolveLabels(ids []string, names map[string]string) []string {
	var resolved []string
	for _, id := range ids {
		if name, ok := names[id]; ok {
			resolved = append(resolved, name)
		}
	}
	return resolved
}

// appendGuideSections adds one guide section per card the plan creates,
// skipping files the guide already tracks.
func (e *Engine) appendGuideSections(plan *reconcile.Plan, logger *zap.Logger) error {
	doc, err := guide.Load(e.cfg.Repo.GuidePath, logger)
	if err != nil {
		return err
	}
	tracked := doc.TrackedFiles()

	appended := 0
	for _, draft := range plan.Create {
		var fresh []string
		for _, path := range draft.SourceFiles {
			if !tracked[path] {
				fresh = append(fresh, path)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		doc.Append(guide.SectionData{
			Title:   draft.Title,
			Summary: fmt.Sprintf("Tracked from commit `%s`.", draft.SourceCommitHash),
			Files:   fresh,
		})
		for _, path := range fresh {
			tracked[path] = true
		}
		appended++
	}
	if appended == 0 {
		return nil
	}
	if err := doc.Save(e.cfg.Repo.GuidePath); err != nil {
		return err
	}
	logger.Info("guide updated", zap.Int("sections_appended", appended))
	return nil
}

// Review audits one card and publishes the verdict. The comment is
// always appended, even when the review is inconclusive.
func (e *Engine) Review(ctx context.Context, cardID string) (*audit.ReviewReport, error) {
	if e.auditor == nil {
		return nil, fmt.Errorf("no auditor configured")
	}

	bc, err := e.svc.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch card %s: %w", cardID, err)
	}
	c := reconcile.CardFromBoard(*bc, nil)

	report, err := e.auditor.Review(&c)
	if err != nil {
		return nil, err
	}
	if err := e.auditor.Publish(ctx, e.svc, e.cfg.Board.BoardID, report,
		e.cfg.Board.DoingList, e.cfg.Audit.MoveOnFail); err != nil {
		return report, err
	}
	return report, nil
}

// Validate checks cards against the template requirements. taskNumber
// zero validates every card on the board.
func (e *Engine) Validate(ctx context.Context, taskNumber int) (*card.Stats, []*card.ValidationError, error) {
	existing, _, err := e.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	known := map[int]bool{}
	for _, c := range existing {
		if c.Number > 0 {
			known[c.Number] = true
		}
	}

	validator := &card.Validator{KnownNumbers: known}
	stats := card.NewStats()
	var issues []*card.ValidationError
	found := false
	for i := range existing {
		c := &existing[i]
		if taskNumber > 0 && c.Number != taskNumber {
			continue
		}
		found = true
		cardIssues := validator.Validate(c)
		stats.Record(cardIssues)
		issues = append(issues, cardIssues...)
	}
	if taskNumber > 0 && !found {
		return nil, nil, &board.NotFoundError{Kind: "task", Name: fmt.Sprintf("%d", taskNumber)}
	}
	return stats, issues, nil
}
