// Package reconcile matches classified repository changes to existing
// task cards or synthesizes new ones, and applies the resulting plan to
// the board.
//
// Matching is keyed on the source commit hash first (idempotent
// re-runs), then falls back to file-set similarity against cards that
// carry no hash. All matching is deterministic: ambiguous candidates
// are resolved by a fixed tie-break and logged, never dropped.
package reconcile

import (
	"fmt"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/board"
	"github.com/fyrsmithlabs/boardsync/internal/card"
	"github.com/fyrsmithlabs/boardsync/internal/change"
	"github.com/fyrsmithlabs/boardsync/internal/classify"
)

// File is one relevant file change with its classification evidence.
type File struct {
	change.FileChange
	Score    float64
	Keywords []string
}

// Change is one commit with its relevant files. Commits whose files
// were all classified irrelevant never reach the reconciler.
type Change struct {
	Record change.Record
	Files  []File
}

// Draft describes a card to be created.
type Draft struct {
	Number           int
	Title            string
	Description      string
	Checklist        []card.ChecklistItem
	Labels           []string
	MemberIDs        []string
	Dependencies     []int
	SourceCommitHash string
	SourceFiles      []string
}

// Update describes changes to an existing card, or to a card pending
// creation in the same plan. Exactly one of CardID and DraftNumber is
// set: a pending-card update carries no description of its own because
// the merged content is already part of the draft.
type Update struct {
	CardID      string
	DraftNumber int
	Description string
	Comment     string
	AddedFiles  []string
}

// Skip records a change that needed no board mutation.
type Skip struct {
	CommitHash string
	CardID     string
	Reason     string
}

// Plan is the outcome of a synchronization pass, before any board call.
type Plan struct {
	Create []Draft
	Update []Update
	Skip   []Skip
}

// Config tunes the reconciler.
type Config struct {
	// SimilarityThreshold is the minimum file-set Jaccard similarity for
	// a fallback match against a hash-less card.
	SimilarityThreshold float64
	// DefaultMembers are usernames assigned when the commit author
	// matches no board member.
	DefaultMembers []string
	// ReferenceLanguage and TargetLanguage name the two implementations
	// for rendered card text.
	ReferenceLanguage string
	TargetLanguage    string
}

// Reconciler builds synchronization plans.
type Reconciler struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a reconciler.
func New(cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{cfg: cfg, logger: logger.Named("reconcile")}
}

var titleNumberRe = regexp.MustCompile(`^Task (\d+):`)

// CardFromBoard converts a raw board card into the canonical task card,
// recovering the task number from the title and the commit hash and
// file set from the description. labelNames must already be resolved
// from the card's label ids.
func CardFromBoard(bc board.Card, labelNames []string) card.TaskCard {
	parsed := card.ParseDescription(bc.Desc)
	number := 0
	if m := titleNumberRe.FindStringSubmatch(bc.Name); m != nil {
		number, _ = strconv.Atoi(m[1])
	}
	return card.TaskCard{
		ID:               bc.ID,
		ListID:           bc.ListID,
		Number:           number,
		Title:            bc.Name,
		Description:      bc.Desc,
		Checklist:        parsed.Checkboxes,
		Labels:           labelNames,
		Members:          bc.MemberIDs,
		Dependencies:     parsed.Dependencies,
		SourceCommitHash: parsed.CommitHash,
		TrackedCommits:   parsed.CommitHashes,
		SourceFiles:      parsed.Files,
		LastActivity:     bc.LastActivity,
	}
}

// Synchronize matches each change against the card snapshot and returns
// a plan. Drafts produced earlier in the pass are candidates for later
// changes too, so two overlapping changes in one run yield one create
// and one update rather than two cards. members is the board member
// registry fetched once per run.
func (r *Reconciler) Synchronize(changes []Change, existing []card.TaskCard, members []board.Member) *Plan {
	plan := &Plan{}

	byHash := map[string]*card.TaskCard{}
	var hashless []*card.TaskCard
	nextNumber := 1
	for i := range existing {
		c := &existing[i]
		if c.SourceCommitHash != "" {
			byHash[c.SourceCommitHash] = c
			for _, h := range c.TrackedCommits {
				byHash[h] = c
			}
		} else if len(c.SourceFiles) > 0 {
			hashless = append(hashless, c)
		}
		if c.Number >= nextNumber {
			nextNumber = c.Number + 1
		}
	}

	var pending []*Draft
	for _, ch := range changes {
		if len(ch.Files) == 0 {
			continue
		}
		if matched, ok := byHash[ch.Record.Hash]; ok {
			plan.Skip = append(plan.Skip, Skip{
				CommitHash: ch.Record.Hash,
				CardID:     matched.ID,
				Reason:     "commit already tracked",
			})
			continue
		}

		if target := r.bestFileMatch(ch, hashless); target != nil {
			if upd, ok := r.buildUpdate(ch, target); ok {
				plan.Update = append(plan.Update, upd)
			} else {
				plan.Skip = append(plan.Skip, Skip{
					CommitHash: ch.Record.Hash,
					CardID:     target.ID,
					Reason:     "files already tracked",
				})
			}
			continue
		}

		if d := r.bestDraftMatch(ch, pending); d != nil {
			if upd, ok := r.mergeDraft(ch, d); ok {
				plan.Update = append(plan.Update, upd)
			} else {
				plan.Skip = append(plan.Skip, Skip{
					CommitHash: ch.Record.Hash,
					Reason:     fmt.Sprintf("files already tracked by pending task %d", d.Number),
				})
			}
			continue
		}

		draft := r.buildDraft(ch, nextNumber, existing, pending, members)
		pending = append(pending, &draft)
		nextNumber++
	}

	plan.Create = make([]Draft, len(pending))
	for i, d := range pending {
		plan.Create[i] = *d
	}
	return plan
}

// bestFileMatch returns the hash-less card whose file set is most
// similar to the change, or nil when none clears the threshold. Equal
// similarity ties break to the most recently updated card, then lowest
// id, and are logged as resolved ambiguities.
func (r *Reconciler) bestFileMatch(ch Change, candidates []*card.TaskCard) *card.TaskCard {
	changed := map[string]bool{}
	for _, f := range ch.Files {
		changed[f.Path] = true
	}

	type scored struct {
		c   *card.TaskCard
		sim float64
	}
	var hits []scored
	for _, c := range candidates {
		sim := jaccard(changed, toSet(c.SourceFiles))
		if sim >= r.cfg.SimilarityThreshold {
			hits = append(hits, scored{c: c, sim: sim})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.Slice(hits, func(i, j int) bool {
		if math.Abs(hits[i].sim-hits[j].sim) > 1e-9 {
			return hits[i].sim > hits[j].sim
		}
		if !hits[i].c.LastActivity.Equal(hits[j].c.LastActivity) {
			return hits[i].c.LastActivity.After(hits[j].c.LastActivity)
		}
		return hits[i].c.ID < hits[j].c.ID
	})

	tied := []string{hits[0].c.ID}
	for _, h := range hits[1:] {
		if math.Abs(h.sim-hits[0].sim) <= 1e-9 {
			tied = append(tied, h.c.ID)
		}
	}
	if len(tied) > 1 {
		ambErr := &AmbiguityError{
			CommitHash: ch.Record.Hash,
			CardIDs:    tied,
			ChosenID:   hits[0].c.ID,
		}
		r.logger.Warn("resolved ambiguous card match",
			zap.String("commit", ch.Record.Hash),
			zap.Float64("similarity", hits[0].sim),
			zap.Error(ambErr))
	}
	return hits[0].c
}

// buildUpdate merges the change's files into the matched card. Returns
// false when every file is already tracked.
func (r *Reconciler) buildUpdate(ch Change, target *card.TaskCard) (Update, bool) {
	tracked := toSet(target.SourceFiles)
	var refs []card.FileRef
	var added []string
	for _, f := range ch.Files {
		if tracked[f.Path] {
			continue
		}
		refs = append(refs, fileRef(f))
		added = append(added, f.Path)
	}
	if len(added) == 0 {
		return Update{}, false
	}

	desc := card.AppendFiles(target.Description, refs)
	target.SourceFiles = append(target.SourceFiles, added...)
	target.Description = desc

	return Update{
		CardID:      target.ID,
		Description: desc,
		Comment: fmt.Sprintf("Synchronized with commit `%s`: %d new file(s) tracked.",
			ch.Record.Hash, len(added)),
		AddedFiles: added,
	}, true
}

// bestDraftMatch returns the pending draft whose file set is most
// similar to the change, or nil when none clears the threshold. Equal
// similarity ties break to the earliest draft, which has the lowest
// task number.
func (r *Reconciler) bestDraftMatch(ch Change, pending []*Draft) *Draft {
	changed := map[string]bool{}
	for _, f := range ch.Files {
		changed[f.Path] = true
	}

	var best *Draft
	bestSim := 0.0
	for _, d := range pending {
		sim := jaccard(changed, toSet(d.SourceFiles))
		if sim >= r.cfg.SimilarityThreshold && sim > bestSim+1e-9 {
			best = d
			bestSim = sim
		}
	}
	return best
}

// mergeDraft folds the change's new files into a pending draft. The
// returned update carries only the commit comment; the merged files are
// already part of the draft's description and checklist. Returns false
// when every file is already tracked.
func (r *Reconciler) mergeDraft(ch Change, d *Draft) (Update, bool) {
	tracked := toSet(d.SourceFiles)
	var refs []card.FileRef
	var added []string
	for _, f := range ch.Files {
		if tracked[f.Path] {
			continue
		}
		refs = append(refs, fileRef(f))
		added = append(added, f.Path)
	}
	if len(added) == 0 {
		return Update{}, false
	}

	d.Description = card.AppendCommit(d.Description, ch.Record.Hash, ch.Record.Author, ch.Record.Time)
	d.Description = card.AppendFiles(d.Description, refs)
	d.Checklist = append(d.Checklist, card.FileItems(refs)...)
	d.SourceFiles = append(d.SourceFiles, added...)

	return Update{
		DraftNumber: d.Number,
		Comment: fmt.Sprintf("Synchronized with commit `%s`: %d new file(s) tracked.",
			ch.Record.Hash, len(added)),
		AddedFiles: added,
	}, true
}

// categoryPrereq maps a category to the category whose base task new
// cards depend on. Edges are advisory metadata only.
var categoryPrereq = map[string]string{
	classify.CategoryUI:     classify.CategoryBackend,
	classify.CategoryAPI:    classify.CategoryBackend,
	classify.CategoryCache:  classify.CategoryBackend,
	classify.CategoryModels: classify.CategoryConfiguration,
}

func (r *Reconciler) buildDraft(ch Change, number int, existing []card.TaskCard, drafts []*Draft, members []board.Member) Draft {
	primary := primaryFile(ch.Files)
	name := componentName(primary.Path)
	category := classify.Categorize(primary.Path)

	total := 0
	refs := make([]card.FileRef, 0, len(ch.Files))
	paths := make([]string, 0, len(ch.Files))
	for _, f := range ch.Files {
		total += f.Lines()
		refs = append(refs, fileRef(f))
		paths = append(paths, f.Path)
	}
	complexity := classify.EstimateComplexity(total)

	deps := dependenciesFor(category, existing, drafts)

	data := card.TemplateData{
		Number:            number,
		Name:              name,
		CommitHash:        ch.Record.Hash,
		Author:            ch.Record.Author,
		When:              ch.Record.Time,
		Message:           ch.Record.Message,
		Category:          category,
		Complexity:        complexity,
		Estimate:          classify.Estimate(complexity),
		Files:             refs,
		Snippet:           snippetFromPatch(primary.Patch, 10),
		ReferenceLanguage: r.cfg.ReferenceLanguage,
		TargetLanguage:    r.cfg.TargetLanguage,
		Dependencies:      deps,
	}

	return Draft{
		Number:           number,
		Title:            card.Title(number, name),
		Description:      card.Render(data),
		Checklist:        card.Checklist(refs),
		Labels:           []string{category},
		MemberIDs:        r.suggestMembers(ch.Record.Author, ch.Record.Email, members),
		Dependencies:     deps,
		SourceCommitHash: ch.Record.Hash,
		SourceFiles:      paths,
	}
}

// dependenciesFor returns the base task number of the prerequisite
// category, considering cards already on the board and drafts from the
// current pass.
func dependenciesFor(category string, existing []card.TaskCard, drafts []*Draft) []int {
	prereq, ok := categoryPrereq[category]
	if !ok {
		return nil
	}
	base := 0
	consider := func(number int, labels []string) {
		for _, label := range labels {
			if label == prereq && number > 0 && (base == 0 || number < base) {
				base = number
			}
		}
	}
	for _, c := range existing {
		consider(c.Number, c.Labels)
	}
	for _, d := range drafts {
		consider(d.Number, d.Labels)
	}
	if base == 0 {
		return nil
	}
	return []int{base}
}

// suggestMembers matches the commit author against the board member
// registry: exact name or username first, then token overlap. A single
// fuzzy hit is trusted; anything else falls back to the configured
// default members.
func (r *Reconciler) suggestMembers(author, email string, members []board.Member) []string {
	for _, m := range members {
		if strings.EqualFold(author, m.FullName) || strings.EqualFold(author, m.Username) {
			return []string{m.ID}
		}
	}

	localPart := email
	if at := strings.Index(email, "@"); at >= 0 {
		localPart = email[:at]
	}

	authorTokens := nameTokens(author)
	var fuzzy []string
	for _, m := range members {
		if localPart != "" && strings.EqualFold(localPart, m.Username) {
			fuzzy = append(fuzzy, m.ID)
			continue
		}
		if tokenOverlap(authorTokens, nameTokens(m.FullName)) {
			fuzzy = append(fuzzy, m.ID)
		}
	}
	if len(fuzzy) == 1 {
		return fuzzy
	}
	if len(fuzzy) > 1 {
		r.logger.Debug("ambiguous author match, using default members",
			zap.String("author", author), zap.Int("candidates", len(fuzzy)))
	}

	var ids []string
	for _, username := range r.cfg.DefaultMembers {
		for _, m := range members {
			if strings.EqualFold(username, m.Username) {
				ids = append(ids, m.ID)
			}
		}
	}
	return ids
}

func nameTokens(name string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func tokenOverlap(a, b []string) bool {
	set := map[string]bool{}
	for _, tok := range a {
		set[tok] = true
	}
	for _, tok := range b {
		if set[tok] {
			return true
		}
	}
	return false
}

// primaryFile picks the change's headline file: highest score, then
// largest diff, then first in record order.
func primaryFile(files []File) File {
	best := files[0]
	for _, f := range files[1:] {
		if f.Score > best.Score || (f.Score == best.Score && f.Lines() > best.Lines()) {
			best = f
		}
	}
	return best
}

func componentName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func fileRef(f File) card.FileRef {
	return card.FileRef{Path: f.Path, Status: f.Status, Added: f.Added, Removed: f.Removed}
}

// snippetFromPatch keeps up to maxLines added lines from a unified
// patch, stripped of the leading marker.
func snippetFromPatch(patch string, maxLines int) string {
	var lines []string
	for _, line := range strings.Split(patch, "\n") {
		if !strings.HasPrefix(line, "+") {
			continue
		}
		text := strings.TrimPrefix(line, "+")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, text)
		if len(lines) == maxLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for p := range a {
		if b[p] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
