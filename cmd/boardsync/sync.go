package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/boardsync/internal/engine"
)

var (
	syncSince       string
	syncDryRun      bool
	syncUpdateGuide bool

	generateSince string
	generateGuide bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize board cards with repository changes",
	Long: `Synchronize reads the commit history of the reference repository,
classifies file changes, and creates or updates task cards on the board.

Examples:
  # Synchronize the last week of changes
  boardsync sync --since 168h

  # Preview without touching the board
  boardsync sync --since 168h --dry-run`,
	RunE: runSync,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate task cards and update the porting guide",
	Long: `Generate runs a synchronization pass and appends a guide section for
every newly created card.

Examples:
  boardsync generate --since 336h
  boardsync generate --since 336h --update-guide=false`,
	RunE: runGenerate,
}

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "168h", "how far back to read changes (duration or RFC 3339 timestamp)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "plan only, issue no board calls")
	syncCmd.Flags().BoolVar(&syncUpdateGuide, "update-guide", false, "append guide sections for created cards")

	generateCmd.Flags().StringVar(&generateSince, "since", "336h", "how far back to read changes (duration or RFC 3339 timestamp)")
	generateCmd.Flags().BoolVar(&generateGuide, "update-guide", true, "append guide sections for created cards")
}

func runSync(cmd *cobra.Command, args []string) error {
	return executeSync(cmd, syncSince, syncDryRun, syncUpdateGuide)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return executeSync(cmd, generateSince, false, generateGuide)
}

func executeSync(cmd *cobra.Command, since string, dryRun, updateGuide bool) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sinceTime, err := parseSince(since)
	if err != nil {
		return err
	}

	result, err := a.engine.Sync(ctx, engine.SyncOptions{
		Since:       sinceTime,
		DryRun:      dryRun,
		UpdateGuide: updateGuide,
	})
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("Plan only; no board calls were issued.")
	}
	fmt.Printf("Run %s: %d commit(s), %d relevant\n", result.RunID, result.Changes, result.Relevant)
	fmt.Printf("  created: %d\n  updated: %d\n  skipped: %d\n  failed:  %d\n",
		result.Created, result.Updated, result.Skipped, result.Failed)
	for _, skip := range result.Plan.Skip {
		fmt.Printf("  skipped %s: %s\n", skip.CommitHash, skip.Reason)
	}
	for _, failure := range result.Failures {
		fmt.Printf("  failed %s %s: %v\n", failure.Op, failure.Target, failure.Err)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d item(s) failed", result.Failed)
	}
	return nil
}

// parseSince accepts a duration counted back from now or an RFC 3339
// timestamp.
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q: use a duration like 168h or an RFC 3339 timestamp", value)
}
