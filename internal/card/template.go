package card

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Description section headings. The reconciler renders them in this
// order; the parser and the auditor locate content by heading.
const (
	SectionContext        = "## Context"
	SectionReference      = "## Reference behavior"
	SectionSteps          = "## Porting steps"
	SectionFiles          = "## Files to review"
	SectionConsiderations = "## Considerations"
	SectionAcceptance     = "## Acceptance criteria"
	SectionFAQ            = "## FAQ"
)

// FixedChecklistSize is the number of acceptance items every card gets
// before the per-file items are appended.
const FixedChecklistSize = 5

// fixedChecklist are the acceptance items common to every task.
var fixedChecklist = []string{
	"Code compiles without warnings",
	"Unit tests cover the ported behavior",
	"Public API matches the reference implementation",
	"Documentation comments are in place",
	"Changes reviewed by a second developer",
}

// TemplateData is everything needed to render a new card description.
type TemplateData struct {
	Number            int
	Name              string
	CommitHash        string
	Author            string
	When              time.Time
	Message           string
	Category          string
	Complexity        string
	Estimate          string
	Files             []FileRef
	Snippet           string
	ReferenceLanguage string
	TargetLanguage    string
	Dependencies      []int
}

// FileRef is one referenced file with its diff stats.
type FileRef struct {
	Path    string
	Status  string
	Added   int
	Removed int
}

// Title renders the card title for a task.
func Title(number int, name string) string {
	return fmt.Sprintf("Task %d: Port %s", number, name)
}

// Render produces the full card description from the fixed template.
// Re-parsing the result with ParseDescription recovers the commit hash
// and the exact referenced-file set.
func Render(d TemplateData) string {
	var b strings.Builder

	b.WriteString(SectionContext + "\n\n")
	fmt.Fprintf(&b, "Commit `%s` by %s on %s.\n\n", d.CommitHash, d.Author, d.When.Format("2006-01-02"))
	if msg := strings.TrimSpace(d.Message); msg != "" {
		b.WriteString(msg + "\n\n")
	}

	b.WriteString(SectionReference + "\n\n")
	if snippet := strings.TrimSpace(d.Snippet); snippet != "" {
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", d.ReferenceLanguage, snippet)
	} else {
		fmt.Fprintf(&b, "See the %s sources referenced below.\n\n", d.ReferenceLanguage)
	}

	b.WriteString(SectionSteps + "\n\n")
	fmt.Fprintf(&b, "1. Read the %s implementation of %s.\n", d.ReferenceLanguage, d.Name)
	fmt.Fprintf(&b, "2. Port the public surface to %s, keeping names and semantics aligned.\n", d.TargetLanguage)
	b.WriteString("3. Port internal helpers only as far as the public surface needs them.\n")
	fmt.Fprintf(&b, "4. Add %s tests mirroring the reference test intent.\n\n", d.TargetLanguage)

	b.WriteString(SectionFiles + "\n\n")
	for _, f := range d.Files {
		fmt.Fprintf(&b, "- `%s` (%s, +%d/-%d)\n", f.Path, statusWord(f.Status), f.Added, f.Removed)
	}
	b.WriteString("\n")

	b.WriteString(SectionConsiderations + "\n\n")
	fmt.Fprintf(&b, "- Category: %s\n", d.Category)
	fmt.Fprintf(&b, "- Complexity: %s\n", d.Complexity)
	fmt.Fprintf(&b, "- Estimate: %s\n", d.Estimate)
	if len(d.Dependencies) > 0 {
		deps := make([]string, len(d.Dependencies))
		for i, n := range d.Dependencies {
			deps[i] = fmt.Sprintf("Task %d", n)
		}
		fmt.Fprintf(&b, "- Depends on: %s\n", strings.Join(deps, ", "))
	}
	b.WriteString("\n")

	b.WriteString(SectionAcceptance + "\n\n")
	for _, item := range Checklist(d.Files) {
		fmt.Fprintf(&b, "- [ ] %s\n", item.Text)
	}
	b.WriteString("\n")

	b.WriteString(SectionFAQ + "\n\n")
	fmt.Fprintf(&b, "**Where is the reference code?** In the %s repository, files listed above.\n\n", d.ReferenceLanguage)
	b.WriteString("**What if a symbol has no direct equivalent?** Note it on this card and ask before inventing one.\n")

	return b.String()
}

// Checklist returns the fixed acceptance items plus one item per
// referenced file.
func Checklist(files []FileRef) []ChecklistItem {
	items := make([]ChecklistItem, 0, FixedChecklistSize+len(files))
	for _, text := range fixedChecklist {
		items = append(items, ChecklistItem{Text: text})
	}
	return append(items, FileItems(files)...)
}

// FileItems returns the per-file acceptance items alone, for merging
// additional files into an existing checklist.
func FileItems(files []FileRef) []ChecklistItem {
	items := make([]ChecklistItem, 0, len(files))
	for _, f := range files {
		items = append(items, ChecklistItem{Text: fmt.Sprintf("Port `%s`", f.Path)})
	}
	return items
}

func statusWord(status string) string {
	switch status {
	case "A":
		return "added"
	case "D":
		return "deleted"
	default:
		return "modified"
	}
}

// AppendFiles inserts file references into the files section of an
// existing description, skipping paths already listed. A description
// without a files section is returned unchanged.
func AppendFiles(desc string, refs []FileRef) string {
	existing := map[string]bool{}
	for _, path := range ParseDescription(desc).Files {
		existing[path] = true
	}

	var added []string
	for _, f := range refs {
		if existing[f.Path] {
			continue
		}
		added = append(added, fmt.Sprintf("- `%s` (%s, +%d/-%d)", f.Path, statusWord(f.Status), f.Added, f.Removed))
		existing[f.Path] = true
	}
	if len(added) == 0 {
		return desc
	}

	lines := strings.Split(desc, "\n")
	insertAt := -1
	inFiles := false
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.EqualFold(trimmed, SectionFiles) {
			inFiles = true
			insertAt = i + 1
			continue
		}
		if inFiles {
			if strings.HasPrefix(trimmed, "## ") {
				break
			}
			if fileLineRe.MatchString(trimmed) {
				insertAt = i + 1
			}
		}
	}
	if !inFiles {
		return desc
	}

	out := make([]string, 0, len(lines)+len(added))
	out = append(out, lines[:insertAt]...)
	out = append(out, added...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}

// AppendCommit records an additional tracked commit next to the
// existing commit line, so re-parsing the description recovers every
// hash the card covers. Already-recorded hashes leave the description
// unchanged.
func AppendCommit(desc, hash, author string, when time.Time) string {
	for _, h := range ParseDescription(desc).CommitHashes {
		if strings.EqualFold(h, hash) {
			return desc
		}
	}
	line := fmt.Sprintf("Commit `%s` by %s on %s.", hash, author, when.Format("2006-01-02"))

	lines := strings.Split(desc, "\n")
	for i, l := range lines {
		if commitRe.MatchString(l) {
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:i+1]...)
			out = append(out, line)
			out = append(out, lines[i+1:]...)
			return strings.Join(out, "\n")
		}
	}
	return line + "\n\n" + desc
}

// ParsedDescription is the structured content recovered from a card
// description. Parsing is best effort and never fails; absent pieces
// are zero values.
type ParsedDescription struct {
	// CommitHash is the first tracked commit; CommitHashes carries all
	// of them in description order.
	CommitHash   string
	CommitHashes []string
	Files        []string
	Checkboxes   []ChecklistItem
	Dependencies []int
	HasSection   map[string]bool
}

var (
	commitRe    = regexp.MustCompile("Commit `([0-9a-fA-F]{7,40})`")
	fileLineRe  = regexp.MustCompile("^- `([^`]+)`")
	checkboxRe  = regexp.MustCompile(`^- \[([ xX])\] (.+)$`)
	estimateRe  = regexp.MustCompile(`\d+-\d+ hours`)
	dependsRe   = regexp.MustCompile(`^- Depends on: (.+)$`)
	taskRefRe   = regexp.MustCompile(`Task (\d+)`)
)

var sectionHeadings = []string{
	SectionContext,
	SectionReference,
	SectionSteps,
	SectionFiles,
	SectionConsiderations,
	SectionAcceptance,
	SectionFAQ,
}

// ParseDescription recovers structure from a rendered description.
// File references are taken only from the files section so paths quoted
// elsewhere do not pollute the set.
func ParseDescription(desc string) ParsedDescription {
	parsed := ParsedDescription{HasSection: map[string]bool{}}

	seen := map[string]bool{}
	for _, m := range commitRe.FindAllStringSubmatch(desc, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		parsed.CommitHashes = append(parsed.CommitHashes, m[1])
	}
	if len(parsed.CommitHashes) > 0 {
		parsed.CommitHash = parsed.CommitHashes[0]
	}

	section := ""
	for _, line := range strings.Split(desc, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		if heading := matchHeading(trimmed); heading != "" {
			section = heading
			parsed.HasSection[heading] = true
			continue
		}
		if section == SectionFiles {
			if m := fileLineRe.FindStringSubmatch(trimmed); m != nil {
				parsed.Files = append(parsed.Files, m[1])
			}
		}
		if section == SectionConsiderations {
			if m := dependsRe.FindStringSubmatch(trimmed); m != nil {
				for _, ref := range taskRefRe.FindAllStringSubmatch(m[1], -1) {
					if n, err := strconv.Atoi(ref[1]); err == nil {
						parsed.Dependencies = append(parsed.Dependencies, n)
					}
				}
			}
		}
		if m := checkboxRe.FindStringSubmatch(trimmed); m != nil {
			parsed.Checkboxes = append(parsed.Checkboxes, ChecklistItem{
				Text: m[2],
				Done: m[1] != " ",
			})
		}
	}
	return parsed
}

func matchHeading(line string) string {
	for _, h := range sectionHeadings {
		if strings.EqualFold(line, h) {
			return h
		}
	}
	return ""
}
