package audit

import (
	"fmt"
	"strings"
)

// Verdict is the review outcome.
type Verdict string

const (
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

// Severity grades a quality issue. Blocking issues fail the review even
// when no symbols are missing.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Issue is one quality finding on the target implementation.
type Issue struct {
	Severity Severity
	File     string
	Message  string
}

// FilePair is one analyzed reference file and its resolved target
// counterpart. Target is empty when no candidate was found.
type FilePair struct {
	Reference string
	Target    string
}

// ReviewReport is the structured outcome of auditing one card.
type ReviewReport struct {
	CardID         string
	FilesAnalyzed  []FilePair
	MissingSymbols []string
	QualityIssues  []Issue
	Suggestions    []string
	Verdict        Verdict
}

// blockingIssues counts issues that fail the review on their own.
func (r *ReviewReport) blockingIssues() int {
	n := 0
	for _, issue := range r.QualityIssues {
		if issue.Severity == SeverityBlocking {
			n++
		}
	}
	return n
}

// RenderComment formats the report as the card comment. A review always
// produces a comment, even when inconclusive.
func (r *ReviewReport) RenderComment() string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Implementation review: %s**\n\n", r.Verdict)

	if len(r.FilesAnalyzed) == 0 {
		b.WriteString("No reference files could be analyzed for this card.\n")
	}
	for _, pair := range r.FilesAnalyzed {
		if pair.Target == "" {
			fmt.Fprintf(&b, "- `%s`: no candidate target file found\n", pair.Reference)
		} else {
			fmt.Fprintf(&b, "- `%s` compared against `%s`\n", pair.Reference, pair.Target)
		}
	}

	if len(r.MissingSymbols) > 0 {
		b.WriteString("\nMissing in target:\n")
		for _, name := range r.MissingSymbols {
			fmt.Fprintf(&b, "- `%s`\n", name)
		}
	}

	if len(r.QualityIssues) > 0 {
		b.WriteString("\nQuality findings:\n")
		for _, issue := range r.QualityIssues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Severity, issue.File, issue.Message)
		}
	}

	if len(r.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return b.String()
}
