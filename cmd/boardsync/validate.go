package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/boardsync/internal/card"
)

var validateCmd = &cobra.Command{
	Use:   "validate [task-number]",
	Short: "Validate card structure against the template",
	Long: `Validate checks cards for the required description sections, acceptance
checklist, effort estimate, labels, members and dependency references,
and reports per-check statistics. Without a task number every card on
the board is validated.

Examples:
  boardsync validate
  boardsync validate 12`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	taskNumber := 0
	if len(args) == 1 {
		taskNumber, err = strconv.Atoi(args[0])
		if err != nil || taskNumber < 1 {
			return fmt.Errorf("task number must be a positive integer, got %q", args[0])
		}
	}

	stats, issues, err := a.engine.Validate(ctx, taskNumber)
	if err != nil {
		return err
	}

	fmt.Printf("Validated %d card(s)\n", stats.Cards)
	for _, check := range card.AllChecks {
		fmt.Printf("  %-20s %d passed, %d failed\n", check, stats.Passed[check], stats.Failed[check])
	}
	for _, issue := range issues {
		fmt.Printf("  %s\n", issue.Error())
	}

	if !stats.Clean() {
		return fmt.Errorf("%d validation issue(s) found", len(issues))
	}
	return nil
}
