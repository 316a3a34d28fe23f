// Package card defines the canonical task card model, the description
// template used when synthesizing cards, and per-field validation.
package card

import (
	"fmt"
	"time"
)

// ChecklistItem is a single acceptance item on a card.
type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TaskCard is the canonical representation of a tracked porting task.
// It is created by the reconciler, mutated by the workflow engine (list
// transitions) and the auditor (comments), and never deleted by this
// system.
type TaskCard struct {
	ID               string          `json:"id"`
	ListID           string          `json:"listId"`
	Number           int             `json:"number"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Checklist        []ChecklistItem `json:"checklist"`
	Labels           []string        `json:"labels"`
	Members          []string        `json:"members"`
	Dependencies     []int           `json:"dependencies"`
	SourceCommitHash string          `json:"sourceCommitHash,omitempty"`
	// TrackedCommits lists every commit recorded on the card, the
	// primary SourceCommitHash included.
	TrackedCommits []string  `json:"trackedCommits,omitempty"`
	SourceFiles    []string  `json:"sourceFiles,omitempty"`
	LastActivity   time.Time `json:"lastActivity"`
}

// ValidationError reports one failed validation check on one card.
// Per-item and non-fatal: batch callers collect these and keep going.
type ValidationError struct {
	CardID string
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("card %s failed check %q: %s", e.CardID, e.Check, e.Reason)
}

// Validation check names. Each check is independent: a card missing
// exactly one required field fails exactly one check.
const (
	CheckAcceptanceSection = "acceptance-section"
	CheckChecklist         = "checklist"
	CheckEstimate          = "estimate"
	CheckLabels            = "labels"
	CheckMembers           = "members"
	CheckDependencies      = "dependencies"
)

// AllChecks lists check names in report order.
var AllChecks = []string{
	CheckAcceptanceSection,
	CheckChecklist,
	CheckEstimate,
	CheckLabels,
	CheckMembers,
	CheckDependencies,
}

// Validator validates task cards. KnownNumbers, when non-nil, is the set
// of task numbers that exist on the board; dependency edges are checked
// against it. Edges stay advisory metadata, so only existence is
// verified, never acyclicity.
type Validator struct {
	KnownNumbers map[int]bool
}

// Validate runs every check against the card and returns one error per
// failed check.
func (v *Validator) Validate(c *TaskCard) []*ValidationError {
	var issues []*ValidationError
	fail := func(check, reason string) {
		issues = append(issues, &ValidationError{CardID: c.ID, Check: check, Reason: reason})
	}

	parsed := ParseDescription(c.Description)

	if !parsed.HasSection[SectionAcceptance] {
		fail(CheckAcceptanceSection, "description has no acceptance criteria section")
	}
	if len(parsed.Checkboxes) < FixedChecklistSize {
		fail(CheckChecklist, fmt.Sprintf("found %d acceptance checkboxes, need at least %d", len(parsed.Checkboxes), FixedChecklistSize))
	}
	if !estimateRe.MatchString(c.Description) {
		fail(CheckEstimate, "no effort estimate of the form N-M hours")
	}
	if len(c.Labels) == 0 {
		fail(CheckLabels, "card has no labels")
	}
	if len(c.Members) == 0 {
		fail(CheckMembers, "card has no members assigned")
	}
	if v.KnownNumbers != nil {
		for _, dep := range c.Dependencies {
			if !v.KnownNumbers[dep] {
				fail(CheckDependencies, fmt.Sprintf("dependency on unknown task %d", dep))
				break
			}
		}
	}
	return issues
}

// Stats accumulates per-check pass/fail counts across a validation run.
type Stats struct {
	Cards  int
	Passed map[string]int
	Failed map[string]int
}

// NewStats returns zeroed stats covering every check.
func NewStats() *Stats {
	s := &Stats{Passed: map[string]int{}, Failed: map[string]int{}}
	for _, check := range AllChecks {
		s.Passed[check] = 0
		s.Failed[check] = 0
	}
	return s
}

// Record folds one card's validation outcome into the stats.
func (s *Stats) Record(issues []*ValidationError) {
	s.Cards++
	failed := map[string]bool{}
	for _, issue := range issues {
		failed[issue.Check] = true
	}
	for _, check := range AllChecks {
		if failed[check] {
			s.Failed[check]++
		} else {
			s.Passed[check]++
		}
	}
}

// Clean reports whether no check failed for any card.
func (s *Stats) Clean() bool {
	for _, n := range s.Failed {
		if n > 0 {
			return false
		}
	}
	return true
}
