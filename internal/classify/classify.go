// Package classify scores file changes for downstream-task relevance.
//
// A change is relevant when its path is inside the allow-list, outside
// the deny-list, and either mentions a lexicon keyword or is large enough
// to be significant on size alone. The score exists only for ranking
// suggestions; gating is purely the boolean rule. Classification never
// fails: an unparsable diff is simply irrelevant with empty evidence.
package classify

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/boardsync/internal/change"
)

// Rules holds the classification rule set.
type Rules struct {
	// AllowPrefixes gate which paths may produce tasks at all.
	AllowPrefixes []string
	// DenyPrefixes veto paths inside the allow-list (tests, generated code).
	DenyPrefixes []string
	// Keywords is a weighted lexicon matched against path and diff text.
	Keywords map[string]float64
	// LineThreshold marks a change significant on size alone.
	LineThreshold int
}

// DefaultLineThreshold is used when Rules.LineThreshold is zero.
const DefaultLineThreshold = 50

// Result is the classification outcome for one file change.
type Result struct {
	Relevant        bool
	Score           float64
	MatchedKeywords []string
}

// Category buckets for changed files, derived from path naming
// conventions in the reference SDK.
const (
	CategoryBackend       = "Backend"
	CategoryUI            = "UI"
	CategoryConfiguration = "Configuration"
	CategoryModels        = "Models"
	CategoryLocalization  = "Localization"
	CategoryAPI           = "API"
	CategoryCache         = "Cache"
	CategoryOther         = "Other"
)

// Complexity estimates derived from file size.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Classifier applies a rule set to file changes.
type Classifier struct {
	rules Rules
}

// New creates a classifier. Zero-value rule fields fall back to safe
// defaults (empty allow-list admits nothing; see Classify).
func New(rules Rules) *Classifier {
	if rules.LineThreshold == 0 {
		rules.LineThreshold = DefaultLineThreshold
	}
	return &Classifier{rules: rules}
}

// Classify scores a single file change.
//
// Relevant iff:
//   - the path matches an allow-list prefix, and
//   - the path matches no deny-list prefix, and
//   - the change contains at least one lexicon keyword OR its total
//     changed line count meets the threshold.
//
// Score = 0.5*hasKeyword + 0.5*isLargeChange, bounded [0,1].
func (c *Classifier) Classify(fc change.FileChange) Result {
	if !hasPrefix(fc.Path, c.rules.AllowPrefixes) {
		return Result{}
	}
	if hasPrefix(fc.Path, c.rules.DenyPrefixes) {
		return Result{}
	}

	matched := c.matchKeywords(fc)
	large := fc.Lines() >= c.rules.LineThreshold

	if len(matched) == 0 && !large {
		return Result{}
	}

	score := 0.0
	if len(matched) > 0 {
		score += 0.5
	}
	if large {
		score += 0.5
	}

	return Result{Relevant: true, Score: score, MatchedKeywords: matched}
}

// matchKeywords returns the lexicon keywords present in the path or diff
// text, sorted for deterministic output.
func (c *Classifier) matchKeywords(fc change.FileChange) []string {
	var matched []string
	for keyword := range c.rules.Keywords {
		if strings.Contains(fc.Path, keyword) || strings.Contains(fc.Patch, keyword) {
			matched = append(matched, keyword)
		}
	}
	sort.Strings(matched)
	return matched
}

// Categorize buckets a changed file by its path naming conventions.
func Categorize(path string) string {
	switch {
	case strings.Contains(path, "Manager"):
		return CategoryBackend
	case strings.Contains(path, "Component"), strings.Contains(path, "View"), strings.Contains(path, "UI"):
		return CategoryUI
	case strings.Contains(path, "Configuration"), strings.Contains(path, "Config"):
		return CategoryConfiguration
	case strings.Contains(path, "Model"), strings.Contains(path, "DTO"):
		return CategoryModels
	case strings.Contains(path, "Localization"), strings.Contains(path, "Translation"):
		return CategoryLocalization
	case strings.Contains(path, "Network"), strings.Contains(path, "API"):
		return CategoryAPI
	case strings.Contains(path, "Cache"), strings.Contains(path, "Storage"):
		return CategoryCache
	default:
		return CategoryOther
	}
}

// EstimateComplexity grades a change by total line count of its diff.
func EstimateComplexity(lines int) string {
	switch {
	case lines > 500:
		return ComplexityHigh
	case lines > 200:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// Estimate maps complexity to an effort estimate string for card
// synthesis.
func Estimate(complexity string) string {
	switch complexity {
	case ComplexityHigh:
		return "5-8 hours"
	case ComplexityMedium:
		return "3-5 hours"
	default:
		return "2-3 hours"
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
