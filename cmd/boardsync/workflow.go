package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/boardsync/internal/workflow"
)

var (
	movePriority string
	moveFrom     string
	moveTo       string

	recommendLimit int
)

var moveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move cards between lists by priority",
	Long: `Move evaluates every card in the source list and moves those matching
the given priority. Each card reports success or failure independently.

Examples:
  boardsync move --priority CRITICAL --from todo --to doing`,
	RunE: runMove,
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote critical backlog cards to the to-do list",
	Long: `Promote moves every CRITICAL backlog card, plus HIGH backlog cards in
the configured feature category, to the to-do list.`,
	RunE: runPromote,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Suggest which cards to work on next",
	RunE:  runRecommend,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the in-progress and done lists",
	RunE:  runStatus,
}

func init() {
	moveCmd.Flags().StringVar(&movePriority, "priority", "HIGH", "priority to match (CRITICAL, HIGH, MEDIUM, LOW)")
	moveCmd.Flags().StringVar(&moveFrom, "from", "todo", "source list role (backlog, todo, doing)")
	moveCmd.Flags().StringVar(&moveTo, "to", "doing", "destination list role (todo, doing, done)")
	recommendCmd.Flags().IntVarP(&recommendLimit, "limit", "n", 5, "maximum number of recommendations")
}

func parseListKind(value string) (workflow.ListKind, error) {
	switch strings.ToLower(value) {
	case "backlog":
		return workflow.ListBacklog, nil
	case "todo":
		return workflow.ListToDo, nil
	case "doing":
		return workflow.ListDoing, nil
	case "done":
		return workflow.ListDone, nil
	}
	return "", fmt.Errorf("unknown list role %q", value)
}

func parsePriority(value string) (workflow.Priority, error) {
	switch strings.ToUpper(value) {
	case string(workflow.PriorityCritical):
		return workflow.PriorityCritical, nil
	case string(workflow.PriorityHigh):
		return workflow.PriorityHigh, nil
	case string(workflow.PriorityMedium):
		return workflow.PriorityMedium, nil
	case string(workflow.PriorityLow):
		return workflow.PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q", value)
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	priority, err := parsePriority(movePriority)
	if err != nil {
		return err
	}
	from, err := parseListKind(moveFrom)
	if err != nil {
		return err
	}
	to, err := parseListKind(moveTo)
	if err != nil {
		return err
	}

	results, err := a.workflow.MoveByPriority(ctx, from, to, priority)
	if err != nil {
		return err
	}
	return printMoveResults(results)
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.workflow.PromoteCritical(ctx)
	if err != nil {
		return err
	}
	return printMoveResults(results)
}

func printMoveResults(results []workflow.MoveResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  FAILED %s (%s -> %s): %v\n", r.CardName, r.From, r.To, r.Err)
			continue
		}
		fmt.Printf("  moved %s (%s -> %s)\n", r.CardName, r.From, r.To)
	}
	fmt.Printf("%d card(s) moved, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d move(s) failed", failed)
	}
	return nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	recs, err := a.workflow.Recommend(ctx, recommendLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No cards to recommend.")
		return nil
	}
	for i, rec := range recs {
		marker := ""
		if rec.InCategory {
			marker = " *"
		}
		fmt.Printf("%d. [%s] %s (%s)%s\n", i+1, rec.Priority, rec.CardName, rec.List, marker)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	snaps, err := a.workflow.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		fmt.Printf("%s (%d)\n", snap.Name, snap.Count)
		for _, c := range snap.Cards {
			fmt.Printf("  - %s (%d comments)\n", c.Name, c.Comments)
		}
	}
	return nil
}
