package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review <card-id>",
	Short: "Audit a card's target implementation",
	Long: `Review resolves the target-language counterparts of the files tracked
by a card, diffs declared symbols against the reference implementation,
and appends the verdict to the card as a comment.

Examples:
  boardsync review 6617f2a1b9c3d400
`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.engine.Review(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Verdict: %s\n", report.Verdict)
	for _, pair := range report.FilesAnalyzed {
		if pair.Target == "" {
			fmt.Printf("  %s: no candidate target file found\n", pair.Reference)
		} else {
			fmt.Printf("  %s -> %s\n", pair.Reference, pair.Target)
		}
	}
	if len(report.MissingSymbols) > 0 {
		fmt.Println("Missing symbols:")
		for _, name := range report.MissingSymbols {
			fmt.Printf("  - %s\n", name)
		}
	}
	for _, issue := range report.QualityIssues {
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.File, issue.Message)
	}
	for _, s := range report.Suggestions {
		fmt.Printf("  suggestion: %s\n", s)
	}
	return nil
}
