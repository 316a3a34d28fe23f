// Package guide reads and extends the structured porting guide, a
// markdown document of numbered sections. Each well-formed section
// carries a files subsection; that is how the guide remembers which
// source files are already tracked. New sections are appended before
// the progress summary marker so the summary stays last.
package guide

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Subsection headings required inside every numbered section.
const (
	SubSummary = "### Summary"
	SubFiles   = "### Files"
	SubNotes   = "### Notes"
)

// SummaryMarker introduces the trailing progress summary. Appended
// sections are inserted just before it.
const SummaryMarker = "## Progress summary"

var sectionHeadingRe = regexp.MustCompile(`^## (\d+)\. (.+)$`)

var fileRefRe = regexp.MustCompile("^- `([^`]+)`")

// Section is one parsed numbered section.
type Section struct {
	Number int
	Title  string
	Files  []string
}

// Document is a parsed guide. The original text is retained verbatim;
// mutation happens by textual insertion so unparsed content survives a
// rewrite byte for byte.
type Document struct {
	content  string
	sections []Section
	logger   *zap.Logger
}

// Parse reads a guide document. Sections missing the files subsection
// are malformed: they are logged and excluded from Sections, never
// fatal, and their text is preserved on render.
func Parse(content string, logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc := &Document{content: content, logger: logger}

	lines := strings.Split(content, "\n")
	var current *Section
	hasFiles := false
	inFiles := false

	flush := func() {
		if current == nil {
			return
		}
		if hasFiles {
			doc.sections = append(doc.sections, *current)
		} else {
			logger.Warn("skipping malformed guide section",
				zap.Int("number", current.Number),
				zap.String("title", current.Title))
		}
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if m := sectionHeadingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			number := 0
			fmt.Sscanf(m[1], "%d", &number)
			current = &Section{Number: number, Title: m[2]}
			hasFiles = false
			inFiles = false
			continue
		}
		if strings.HasPrefix(trimmed, "## ") {
			// A non-numbered top-level heading (the summary) ends
			// the section run.
			flush()
			inFiles = false
			continue
		}
		if current == nil {
			continue
		}
		if strings.HasPrefix(trimmed, "### ") {
			inFiles = strings.EqualFold(trimmed, SubFiles)
			if inFiles {
				hasFiles = true
			}
			continue
		}
		if inFiles {
			if m := fileRefRe.FindStringSubmatch(trimmed); m != nil {
				current.Files = append(current.Files, m[1])
			}
		}
	}
	flush()
	return doc
}

// Sections returns the well-formed numbered sections in document order.
func (d *Document) Sections() []Section {
	return d.sections
}

// TrackedFiles returns the union of file references across all
// well-formed sections.
func (d *Document) TrackedFiles() map[string]bool {
	files := map[string]bool{}
	for _, s := range d.sections {
		for _, f := range s.Files {
			files[f] = true
		}
	}
	return files
}

// NextNumber returns one past the highest section number, starting at 1.
func (d *Document) NextNumber() int {
	max := 0
	for _, s := range d.sections {
		if s.Number > max {
			max = s.Number
		}
	}
	return max + 1
}

// SectionData is the input for an appended section.
type SectionData struct {
	Title   string
	Summary string
	Files   []string
	Notes   string
}

// Append renders a new numbered section and inserts it before the
// progress summary marker, or at the end when the marker is absent.
// It returns the assigned section number.
func (d *Document) Append(data SectionData) int {
	number := d.NextNumber()

	var b strings.Builder
	fmt.Fprintf(&b, "## %d. %s\n\n", number, data.Title)
	b.WriteString(SubSummary + "\n\n")
	b.WriteString(strings.TrimSpace(data.Summary) + "\n\n")
	b.WriteString(SubFiles + "\n\n")
	for _, f := range data.Files {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}
	b.WriteString("\n")
	if notes := strings.TrimSpace(data.Notes); notes != "" {
		b.WriteString(SubNotes + "\n\n")
		b.WriteString(notes + "\n\n")
	}
	section := b.String()

	if idx := strings.Index(d.content, SummaryMarker); idx >= 0 {
		d.content = d.content[:idx] + section + d.content[idx:]
	} else {
		if d.content != "" && !strings.HasSuffix(d.content, "\n") {
			d.content += "\n"
		}
		d.content += "\n" + section
	}

	d.sections = append(d.sections, Section{Number: number, Title: data.Title, Files: data.Files})
	return number
}

// Render returns the current document text.
func (d *Document) Render() string {
	return d.content
}

// Load parses a guide file from disk. A missing file yields an empty
// document so a first run can create the guide.
func Load(path string, logger *zap.Logger) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse("", logger), nil
		}
		return nil, fmt.Errorf("failed to read guide %s: %w", path, err)
	}
	return Parse(string(data), logger), nil
}

// Save writes the document back to disk.
func (d *Document) Save(path string) error {
	if err := os.WriteFile(path, []byte(d.content), 0o644); err != nil {
		return fmt.Errorf("failed to write guide %s: %w", path, err)
	}
	return nil
}
