// Package audit compares a reference implementation against a ported
// target implementation for the files tracked by a task card, and
// publishes a structured review verdict back to the board.
//
// The comparison is heuristic: declared symbols are extracted with
// per-language pattern sets and diffed by name. Missing symbols and
// blocking quality findings fail the review; everything else is
// surfaced for human judgment. Functions and types participate in the
// parity diff; properties are extracted but excluded as too noisy.
package audit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/board"
	"github.com/fyrsmithlabs/boardsync/internal/card"
)

// Config locates the two implementations.
type Config struct {
	ReferenceRoot     string
	TargetRoot        string
	ReferenceLanguage string
	TargetLanguage    string
}

// Auditor reviews cards against the target tree.
type Auditor struct {
	cfg       Config
	reference SymbolExtractor
	target    SymbolExtractor
	logger    *zap.Logger
}

// New creates an auditor. Both languages must have registered
// extractors.
func New(cfg Config, logger *zap.Logger) (*Auditor, error) {
	ref, err := ExtractorFor(cfg.ReferenceLanguage)
	if err != nil {
		return nil, err
	}
	target, err := ExtractorFor(cfg.TargetLanguage)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{cfg: cfg, reference: ref, target: target, logger: logger.Named("audit")}, nil
}

// Requirements is what the auditor recovered from a card description.
type Requirements struct {
	CommitHash string
	Files      []string
	Checkboxes []card.ChecklistItem
	Keywords   []string
}

var keywordRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:[A-Z][a-z0-9]*)+)\b`)

// ExtractRequirements pulls referenced files, checkbox lines, the
// source commit hash and camel-case keywords from a card description.
func ExtractRequirements(c *card.TaskCard) Requirements {
	parsed := card.ParseDescription(c.Description)

	seen := map[string]bool{}
	var keywords []string
	for _, m := range keywordRe.FindAllStringSubmatch(c.Title+"\n"+c.Description, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keywords = append(keywords, m[1])
		}
	}

	return Requirements{
		CommitHash: parsed.CommitHash,
		Files:      parsed.Files,
		Checkboxes: parsed.Checkboxes,
		Keywords:   keywords,
	}
}

// Review audits one card. It never fails on per-file problems: an
// unreadable target file or a missing candidate becomes a finding, not
// an error. The returned report always supports a comment.
func (a *Auditor) Review(c *card.TaskCard) (*ReviewReport, error) {
	reqs := ExtractRequirements(c)
	report := &ReviewReport{CardID: c.ID}

	targetFiles, err := a.listTargetFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to scan target tree %s: %w", a.cfg.TargetRoot, err)
	}

	missing := map[string]bool{}
	for _, refPath := range reqs.Files {
		if !a.isReferenceFile(refPath) {
			continue
		}
		pair := FilePair{Reference: refPath}

		refSrc, err := os.ReadFile(filepath.Join(a.cfg.ReferenceRoot, refPath))
		if err != nil {
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("reference file `%s` could not be read; verify the reference checkout", refPath))
			report.FilesAnalyzed = append(report.FilesAnalyzed, pair)
			continue
		}
		refSyms := a.reference.Extract(string(refSrc))

		targetPath := a.resolveCandidate(refPath, reqs.Keywords, targetFiles)
		if targetPath == "" {
			report.FilesAnalyzed = append(report.FilesAnalyzed, pair)
			for _, name := range parityNames(refSyms) {
				missing[name] = true
			}
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("create the %s counterpart of `%s`", a.cfg.TargetLanguage, refPath))
			continue
		}
		pair.Target = targetPath
		report.FilesAnalyzed = append(report.FilesAnalyzed, pair)

		targetSrc, err := os.ReadFile(filepath.Join(a.cfg.TargetRoot, targetPath))
		if err != nil {
			report.QualityIssues = append(report.QualityIssues, Issue{
				Severity: SeverityBlocking,
				File:     targetPath,
				Message:  "target file could not be read",
			})
			continue
		}

		targetSyms := a.target.Extract(string(targetSrc))
		have := map[string]bool{}
		for _, name := range parityNames(targetSyms) {
			have[name] = true
		}
		for _, name := range parityNames(refSyms) {
			if !have[name] {
				missing[name] = true
			}
		}

		report.QualityIssues = append(report.QualityIssues,
			a.qualityFindings(targetPath, string(refSrc), string(targetSrc))...)
	}

	report.MissingSymbols = sortedKeys(missing)
	if len(report.MissingSymbols) == 0 && report.blockingIssues() == 0 {
		report.Verdict = VerdictPass
	} else {
		report.Verdict = VerdictFail
	}

	a.logger.Info("review completed",
		zap.String("card", c.ID),
		zap.String("verdict", string(report.Verdict)),
		zap.Int("missing_symbols", len(report.MissingSymbols)),
		zap.Int("quality_issues", len(report.QualityIssues)))
	return report, nil
}

// parityNames returns the symbol names that participate in the parity
// diff.
func parityNames(s Symbols) []string {
	return append(append([]string{}, s.Functions...), s.Types...)
}

func (a *Auditor) isReferenceFile(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range a.reference.Extensions() {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// listTargetFiles walks the target tree once and returns relative paths
// of files in the target language.
func (a *Auditor) listTargetFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.cfg.TargetRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		for _, want := range a.target.Extensions() {
			if strings.EqualFold(ext, want) {
				rel, relErr := filepath.Rel(a.cfg.TargetRoot, path)
				if relErr != nil {
					return relErr
				}
				files = append(files, filepath.ToSlash(rel))
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// resolveCandidate finds the target counterpart of a reference file:
// the reference base name converted to the target naming convention and
// matched exactly, then a keyword-containment fallback across the whole
// target tree.
func (a *Auditor) resolveCandidate(refPath string, keywords []string, targetFiles []string) string {
	component := baseName(refPath)
	wantBase := toPascal(component)

	for _, tf := range targetFiles {
		if strings.EqualFold(baseName(tf), wantBase) {
			return tf
		}
	}

	needles := append([]string{component}, keywords...)
	for _, tf := range targetFiles {
		base := strings.ToLower(baseName(tf))
		for _, needle := range needles {
			if len(needle) >= 4 && strings.Contains(base, strings.ToLower(needle)) {
				return tf
			}
		}
	}
	return ""
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// toPascal converts snake or kebab case to PascalCase; names already in
// PascalCase pass through unchanged.
func toPascal(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 1 {
		return name
	}
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

var (
	asyncRefRe    = regexp.MustCompile(`\b(?:async|throws)\b`)
	suspendRe     = regexp.MustCompile(`\bsuspend fun\b`)
	errHandlingRe = regexp.MustCompile(`\b(?:try|catch|runCatching|Result<)`)
	emptyBodyRe   = regexp.MustCompile(`fun\s+\w+[^{]*\{\s*\}`)
	todoBodyRe    = regexp.MustCompile(`\bTODO\(`)
	docCommentRe  = regexp.MustCompile(`(?m)^\s*(?:///|/\*\*|\*)`)
	funcDeclRe    = regexp.MustCompile(`(?m)\b(?:fun|func)\s+\w+`)
)

// qualityFindings applies the heuristic checks to one target file.
func (a *Auditor) qualityFindings(targetPath, refSrc, targetSrc string) []Issue {
	var issues []Issue

	if emptyBodyRe.MatchString(targetSrc) || todoBodyRe.MatchString(targetSrc) {
		issues = append(issues, Issue{
			Severity: SeverityBlocking,
			File:     targetPath,
			Message:  "contains empty or placeholder function bodies",
		})
	}

	funcs := len(funcDeclRe.FindAllString(targetSrc, -1))
	docs := len(docCommentRe.FindAllString(targetSrc, -1))
	if funcs >= 3 && docs == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			File:     targetPath,
			Message:  "no documentation comments on a file with several functions",
		})
	}

	if asyncRefRe.MatchString(refSrc) && suspendRe.MatchString(targetSrc) && !errHandlingRe.MatchString(targetSrc) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			File:     targetPath,
			Message:  "suspending functions have no visible error handling",
		})
	}

	return issues
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BoardService is the slice of the board client the auditor needs to
// publish a review.
type BoardService interface {
	AddComment(ctx context.Context, cardID, text string) error
	FindList(ctx context.Context, boardID, name string) (*board.List, error)
	MoveCard(ctx context.Context, cardID, listID string) error
}

// Publish appends the review comment to the card and, on a failed
// verdict with moveOnFail set, moves the card to the in-progress list.
// A missing in-progress list downgrades to a warning.
func (a *Auditor) Publish(ctx context.Context, svc BoardService, boardID string, report *ReviewReport, inProgressList string, moveOnFail bool) error {
	if err := svc.AddComment(ctx, report.CardID, report.RenderComment()); err != nil {
		return fmt.Errorf("failed to comment on card %s: %w", report.CardID, err)
	}

	if report.Verdict != VerdictFail || !moveOnFail {
		return nil
	}

	list, err := svc.FindList(ctx, boardID, inProgressList)
	if err != nil {
		if board.IsNotFound(err) {
			a.logger.Warn("in-progress list not found, skipping move",
				zap.String("list", inProgressList),
				zap.String("card", report.CardID))
			return nil
		}
		return fmt.Errorf("failed to resolve list %q: %w", inProgressList, err)
	}
	if err := svc.MoveCard(ctx, report.CardID, list.ID); err != nil {
		return fmt.Errorf("failed to move card %s: %w", report.CardID, err)
	}
	return nil
}
