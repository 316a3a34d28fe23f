package card

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() TemplateData {
	return TemplateData{
		Number:     12,
		Name:       "CampaignManager",
		CommitHash: "a1b2c3d4e5f6a7b8",
		Author:     "Jordan Vega",
		When:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Message:    "Add component fetch to CampaignManager",
		Category:   "Backend",
		Complexity: "high",
		Estimate:   "5-8 hours",
		Files: []FileRef{
			{Path: "Sources/Core/CampaignManager.swift", Status: "M", Added: 80, Removed: 3},
			{Path: "Sources/Models/Component.swift", Status: "A", Added: 40},
		},
		Snippet:           "func fetchActiveComponents() async throws -> [Component]",
		ReferenceLanguage: "swift",
		TargetLanguage:    "kotlin",
		Dependencies:      []int{4},
	}
}

func validCard(t *testing.T) *TaskCard {
	t.Helper()
	d := sampleData()
	return &TaskCard{
		ID:               "card-12",
		Number:           d.Number,
		Title:            Title(d.Number, d.Name),
		Description:      Render(d),
		Checklist:        Checklist(d.Files),
		Labels:           []string{"Backend"},
		Members:          []string{"member-1"},
		Dependencies:     d.Dependencies,
		SourceCommitHash: d.CommitHash,
	}
}

func TestRenderSections(t *testing.T) {
	desc := Render(sampleData())

	for _, heading := range sectionHeadings {
		assert.Contains(t, desc, heading+"\n")
	}
	assert.Contains(t, desc, "Commit `a1b2c3d4e5f6a7b8` by Jordan Vega on 2026-03-02.")
	assert.Contains(t, desc, "```swift\nfunc fetchActiveComponents()")
	assert.Contains(t, desc, "- `Sources/Core/CampaignManager.swift` (modified, +80/-3)")
	assert.Contains(t, desc, "- `Sources/Models/Component.swift` (added, +40/-0)")
	assert.Contains(t, desc, "- Estimate: 5-8 hours")
	assert.Contains(t, desc, "- Depends on: Task 4")
	assert.Contains(t, desc, "- [ ] Port `Sources/Core/CampaignManager.swift`")
}

func TestRenderParseRoundTrip(t *testing.T) {
	d := sampleData()
	parsed := ParseDescription(Render(d))

	assert.Equal(t, d.CommitHash, parsed.CommitHash)

	want := make([]string, len(d.Files))
	for i, f := range d.Files {
		want[i] = f.Path
	}
	assert.Equal(t, want, parsed.Files)
	assert.Equal(t, d.Dependencies, parsed.Dependencies)
	assert.Len(t, parsed.Checkboxes, FixedChecklistSize+len(d.Files))
	for _, heading := range sectionHeadings {
		assert.True(t, parsed.HasSection[heading], heading)
	}
}

func TestParseDescriptionDependencies(t *testing.T) {
	desc := strings.Join([]string{
		"## Context",
		"",
		"See Task 1 for background.",
		"",
		"## Considerations",
		"",
		"- Category: UI",
		"- Depends on: Task 3, Task 7",
		"",
	}, "\n")
	parsed := ParseDescription(desc)
	assert.Equal(t, []int{3, 7}, parsed.Dependencies,
		"task references outside the depends line are not edges")
}

func TestParseDescriptionIgnoresPathsOutsideFilesSection(t *testing.T) {
	desc := strings.Join([]string{
		"## Context",
		"",
		"Touches `Sources/Core/Stray.swift` in passing.",
		"",
		"## Files to review",
		"",
		"- `Sources/Core/Real.swift` (modified, +1/-1)",
		"",
	}, "\n")

	parsed := ParseDescription(desc)
	assert.Equal(t, []string{"Sources/Core/Real.swift"}, parsed.Files)
}

func TestParseDescriptionCheckboxState(t *testing.T) {
	desc := "## Acceptance criteria\n\n- [x] done item\n- [ ] open item\n"
	parsed := ParseDescription(desc)

	require.Len(t, parsed.Checkboxes, 2)
	assert.True(t, parsed.Checkboxes[0].Done)
	assert.False(t, parsed.Checkboxes[1].Done)
}

func TestParseDescriptionEmpty(t *testing.T) {
	parsed := ParseDescription("")
	assert.Empty(t, parsed.CommitHash)
	assert.Empty(t, parsed.Files)
	assert.Empty(t, parsed.Checkboxes)
}

func TestChecklistFixedPlusPerFile(t *testing.T) {
	items := Checklist(sampleData().Files)
	require.Len(t, items, FixedChecklistSize+2)
	assert.Equal(t, "Code compiles without warnings", items[0].Text)
	assert.Equal(t, "Port `Sources/Core/CampaignManager.swift`", items[FixedChecklistSize].Text)
	for _, item := range items {
		assert.False(t, item.Done)
	}
}

func TestAppendFiles(t *testing.T) {
	desc := Render(sampleData())

	merged := AppendFiles(desc, []FileRef{
		{Path: "Sources/Core/CampaignManager.swift", Status: "M", Added: 2}, // already listed
		{Path: "Sources/Core/CampaignStore.swift", Status: "A", Added: 30},
	})

	parsed := ParseDescription(merged)
	assert.Equal(t, []string{
		"Sources/Core/CampaignManager.swift",
		"Sources/Models/Component.swift",
		"Sources/Core/CampaignStore.swift",
	}, parsed.Files)

	// Idempotent once merged.
	assert.Equal(t, merged, AppendFiles(merged, []FileRef{
		{Path: "Sources/Core/CampaignStore.swift", Status: "A", Added: 30},
	}))
}

func TestAppendFilesNoSection(t *testing.T) {
	desc := "## Context\n\nfree text\n"
	assert.Equal(t, desc, AppendFiles(desc, []FileRef{{Path: "Sources/X.swift"}}))
}

func TestValidateCompleteCardHasNoIssues(t *testing.T) {
	v := &Validator{KnownNumbers: map[int]bool{4: true, 12: true}}
	assert.Empty(t, v.Validate(validCard(t)))
}

func TestValidateEachMissingFieldFailsExactlyOneCheck(t *testing.T) {
	known := map[int]bool{4: true, 12: true}

	tests := []struct {
		name   string
		mutate func(*TaskCard)
		check  string
	}{
		{
			name:   "no labels",
			mutate: func(c *TaskCard) { c.Labels = nil },
			check:  CheckLabels,
		},
		{
			name:   "no members",
			mutate: func(c *TaskCard) { c.Members = nil },
			check:  CheckMembers,
		},
		{
			name: "unknown dependency",
			mutate: func(c *TaskCard) {
				c.Dependencies = []int{99}
			},
			check: CheckDependencies,
		},
		{
			name: "no estimate",
			mutate: func(c *TaskCard) {
				c.Description = strings.ReplaceAll(c.Description, "5-8 hours", "a while")
			},
			check: CheckEstimate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validCard(t)
			tc.mutate(c)

			v := &Validator{KnownNumbers: known}
			issues := v.Validate(c)
			require.Len(t, issues, 1)
			assert.Equal(t, tc.check, issues[0].Check)
			assert.Equal(t, c.ID, issues[0].CardID)
			assert.Contains(t, issues[0].Error(), tc.check)
		})
	}
}

func TestValidateMissingAcceptanceSection(t *testing.T) {
	c := validCard(t)
	c.Description = strings.ReplaceAll(c.Description, SectionAcceptance, "## Done when")
	// Checkboxes survive the heading rename, so only the section check fails.
	v := &Validator{}
	issues := v.Validate(c)
	require.Len(t, issues, 1)
	assert.Equal(t, CheckAcceptanceSection, issues[0].Check)
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.Record(nil)
	s.Record([]*ValidationError{{CardID: "c2", Check: CheckLabels}})

	assert.Equal(t, 2, s.Cards)
	assert.Equal(t, 1, s.Failed[CheckLabels])
	assert.Equal(t, 1, s.Passed[CheckLabels])
	assert.Equal(t, 2, s.Passed[CheckMembers])
	assert.False(t, s.Clean())

	clean := NewStats()
	clean.Record(nil)
	assert.True(t, clean.Clean())
}
