// Package workflow moves cards between board lists based on priority
// and category rules and on audit verdicts. Every batch move evaluates
// cards independently and reports per-card success or failure; the
// system never auto-closes work.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/board"
)

// Priority is the scheduling priority detected on a card.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// priorityRank orders priorities for ranking; lower is more urgent.
var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

var priorityScan = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ListKind names the board list roles the engine understands. Lists
// outside these four are opaque to the engine.
type ListKind string

const (
	ListBacklog ListKind = "backlog"
	ListToDo    ListKind = "todo"
	ListDoing   ListKind = "doing"
	ListDone    ListKind = "done"
)

// ListNames maps list roles to the board's actual list names.
type ListNames struct {
	Backlog string
	ToDo    string
	Doing   string
	Done    string
}

// Name returns the configured name for a list role.
func (n ListNames) Name(kind ListKind) string {
	switch kind {
	case ListBacklog:
		return n.Backlog
	case ListToDo:
		return n.ToDo
	case ListDoing:
		return n.Doing
	case ListDone:
		return n.Done
	}
	return ""
}

// BoardService is the slice of the board client the engine needs.
type BoardService interface {
	FindList(ctx context.Context, boardID, name string) (*board.List, error)
	CardsInList(ctx context.Context, listID string) ([]board.Card, error)
	MoveCard(ctx context.Context, cardID, listID string) error
	Labels(ctx context.Context, boardID string) ([]board.Label, error)
	CardComments(ctx context.Context, cardID string) ([]board.Comment, error)
}

// MoveResult is the outcome of one attempted card move.
type MoveResult struct {
	CardID   string
	CardName string
	From     string
	To       string
	Err      error
}

// Engine is the board state machine.
type Engine struct {
	svc           BoardService
	boardID       string
	lists         ListNames
	categoryTerms []string
	logger        *zap.Logger
}

// New creates a workflow engine. categoryTerms is the keyword set for
// the configured feature grouping (for example the real-time and
// engagement keywords).
func New(svc BoardService, boardID string, lists ListNames, categoryTerms []string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		svc:           svc,
		boardID:       boardID,
		lists:         lists,
		categoryTerms: categoryTerms,
		logger:        logger.Named("workflow"),
	}
}

// DetectPriority scans label names first, then the description, for the
// priority vocabulary. Absent markers default to MEDIUM.
func DetectPriority(c board.Card, labelNames map[string]string) Priority {
	for _, id := range c.LabelIDs {
		name := strings.ToUpper(labelNames[id])
		for _, p := range priorityScan {
			if strings.Contains(name, string(p)) {
				return p
			}
		}
	}
	desc := strings.ToUpper(c.Desc)
	for _, p := range priorityScan {
		if strings.Contains(desc, string(p)) {
			return p
		}
	}
	return PriorityMedium
}

// InCategory reports whether the card's title or description contains
// any of the configured category terms.
func (e *Engine) InCategory(c board.Card) bool {
	haystack := strings.ToLower(c.Name + "\n" + c.Desc)
	for _, term := range e.categoryTerms {
		if strings.Contains(haystack, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func (e *Engine) labelNames(ctx context.Context) (map[string]string, error) {
	labels, err := e.svc.Labels(ctx, e.boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board labels: %w", err)
	}
	names := make(map[string]string, len(labels))
	for _, l := range labels {
		names[l.ID] = l.Name
	}
	return names, nil
}

// MoveByPriority moves every card of the given priority from one list
// to another. Each card is evaluated and moved independently; the
// returned slice carries per-card outcomes.
func (e *Engine) MoveByPriority(ctx context.Context, from, to ListKind, priority Priority) ([]MoveResult, error) {
	fromList, err := e.svc.FindList(ctx, e.boardID, e.lists.Name(from))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source list: %w", err)
	}
	toList, err := e.svc.FindList(ctx, e.boardID, e.lists.Name(to))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination list: %w", err)
	}
	labelNames, err := e.labelNames(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := e.svc.CardsInList(ctx, fromList.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards in %s: %w", fromList.Name, err)
	}

	var results []MoveResult
	for _, c := range cards {
		if DetectPriority(c, labelNames) != priority {
			continue
		}
		results = append(results, e.move(ctx, c, fromList, toList))
	}
	return results, nil
}

// PromoteCritical moves every CRITICAL backlog card, plus HIGH backlog
// cards in the configured category, to the to-do list.
func (e *Engine) PromoteCritical(ctx context.Context) ([]MoveResult, error) {
	fromList, err := e.svc.FindList(ctx, e.boardID, e.lists.Backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backlog list: %w", err)
	}
	toList, err := e.svc.FindList(ctx, e.boardID, e.lists.ToDo)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve to-do list: %w", err)
	}
	labelNames, err := e.labelNames(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := e.svc.CardsInList(ctx, fromList.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog cards: %w", err)
	}

	var results []MoveResult
	for _, c := range cards {
		priority := DetectPriority(c, labelNames)
		promote := priority == PriorityCritical ||
			(priority == PriorityHigh && e.InCategory(c))
		if !promote {
			continue
		}
		results = append(results, e.move(ctx, c, fromList, toList))
	}
	return results, nil
}

// StartWork moves a single card from to-do to doing on explicit
// operator command.
func (e *Engine) StartWork(ctx context.Context, cardID string) error {
	return e.moveTo(ctx, cardID, e.lists.Doing)
}

// Complete moves a single card to done. Only an explicit command closes
// work.
func (e *Engine) Complete(ctx context.Context, cardID string) error {
	return e.moveTo(ctx, cardID, e.lists.Done)
}

func (e *Engine) moveTo(ctx context.Context, cardID, listName string) error {
	list, err := e.svc.FindList(ctx, e.boardID, listName)
	if err != nil {
		return fmt.Errorf("failed to resolve list %q: %w", listName, err)
	}
	if err := e.svc.MoveCard(ctx, cardID, list.ID); err != nil {
		return fmt.Errorf("failed to move card %s: %w", cardID, err)
	}
	return nil
}

func (e *Engine) move(ctx context.Context, c board.Card, from, to *board.List) MoveResult {
	result := MoveResult{CardID: c.ID, CardName: c.Name, From: from.Name, To: to.Name}
	if err := e.svc.MoveCard(ctx, c.ID, to.ID); err != nil {
		result.Err = err
		e.logger.Error("card move failed",
			zap.String("card", c.ID),
			zap.String("to", to.Name),
			zap.Error(err))
		return result
	}
	e.logger.Info("card moved",
		zap.String("card", c.ID),
		zap.String("from", from.Name),
		zap.String("to", to.Name))
	return result
}

// Recommendation is one suggested next card.
type Recommendation struct {
	CardID     string
	CardName   string
	List       string
	Priority   Priority
	InCategory bool
}

// Recommend ranks to-do and backlog cards by priority, preferring cards
// in the configured category within the same priority, and returns up
// to limit picks.
func (e *Engine) Recommend(ctx context.Context, limit int) ([]Recommendation, error) {
	labelNames, err := e.labelNames(ctx)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	for _, listName := range []string{e.lists.ToDo, e.lists.Backlog} {
		list, err := e.svc.FindList(ctx, e.boardID, listName)
		if err != nil {
			if board.IsNotFound(err) {
				e.logger.Warn("list missing, skipping for recommendations", zap.String("list", listName))
				continue
			}
			return nil, err
		}
		cards, err := e.svc.CardsInList(ctx, list.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list cards in %s: %w", listName, err)
		}
		for _, c := range cards {
			recs = append(recs, Recommendation{
				CardID:     c.ID,
				CardName:   c.Name,
				List:       list.Name,
				Priority:   DetectPriority(c, labelNames),
				InCategory: e.InCategory(c),
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if priorityRank[recs[i].Priority] != priorityRank[recs[j].Priority] {
			return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
		}
		return recs[i].InCategory && !recs[j].InCategory
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// CardActivity is one snapshot card with its review discussion size.
type CardActivity struct {
	CardID   string
	Name     string
	Comments int
}

// ListSnapshot is the state of one board list at snapshot time.
type ListSnapshot struct {
	Name  string
	Count int
	Cards []CardActivity
}

// Snapshot reports the doing and done lists with per-card comment
// counts, for progress summaries. A missing list is skipped with a
// warning; a failed comment fetch leaves that card's count at zero.
func (e *Engine) Snapshot(ctx context.Context) ([]ListSnapshot, error) {
	var snaps []ListSnapshot
	for _, listName := range []string{e.lists.Doing, e.lists.Done} {
		list, err := e.svc.FindList(ctx, e.boardID, listName)
		if err != nil {
			if board.IsNotFound(err) {
				e.logger.Warn("list missing, skipping in snapshot", zap.String("list", listName))
				continue
			}
			return nil, err
		}
		cards, err := e.svc.CardsInList(ctx, list.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list cards in %s: %w", listName, err)
		}
		snap := ListSnapshot{Name: list.Name, Count: len(cards)}
		for _, c := range cards {
			activity := CardActivity{CardID: c.ID, Name: c.Name}
			comments, err := e.svc.CardComments(ctx, c.ID)
			if err != nil {
				e.logger.Warn("failed to fetch card comments",
					zap.String("card", c.ID), zap.Error(err))
			} else {
				activity.Comments = len(comments)
			}
			snap.Cards = append(snap.Cards, activity)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
