package change

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testRepo builds a small repository with three commits at one-hour
// intervals, returning the path and the base commit time.
func testRepo(t *testing.T) (string, time.Time) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	commitFile := func(path, content, msg string, when time.Time) {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
		_, err := wt.Add(path)
		require.NoError(t, err)
		_, err = wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "Dana Author", Email: "dana@example.com", When: when},
		})
		require.NoError(t, err)
	}

	commitFile("Sources/Core/Managers/CampaignManager.swift",
		"public class CampaignManager {\n    public func fetchCampaign() {}\n}\n",
		"add campaign manager", base)
	commitFile("Sources/Core/Managers/CampaignManager.swift",
		"public class CampaignManager {\n    public func fetchCampaign() {}\n    public func fetchActiveComponents() {}\n}\n",
		"add active components", base.Add(time.Hour))
	commitFile("Tests/CampaignManagerTests.swift",
		"import XCTest\n",
		"add tests", base.Add(2*time.Hour))

	return dir, base
}

func TestGitSource_Changes(t *testing.T) {
	dir, base := testRepo(t)

	src, err := NewGitSource(dir, zap.NewNop())
	require.NoError(t, err)

	records, err := src.Changes(context.Background(), Window{Since: base.Add(-time.Minute)}, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Oldest-first ordering.
	assert.Equal(t, "add campaign manager", records[0].Message)
	assert.Equal(t, "add active components", records[1].Message)
	assert.Equal(t, "add tests", records[2].Message)

	first := records[0]
	assert.Equal(t, "Dana Author", first.Author)
	assert.Equal(t, "dana@example.com", first.Email)
	assert.NotEmpty(t, first.Hash)
	require.Len(t, first.Files, 1)
	assert.Equal(t, "Sources/Core/Managers/CampaignManager.swift", first.Files[0].Path)
	assert.Equal(t, StatusAdded, first.Files[0].Status)
	assert.Greater(t, first.Files[0].Added, 0)

	// Second commit modifies the file and carries a patch.
	second := records[1]
	require.Len(t, second.Files, 1)
	assert.Equal(t, StatusModified, second.Files[0].Status)
	assert.Contains(t, second.Files[0].Patch, "fetchActiveComponents")
}

func TestGitSource_Changes_Deterministic(t *testing.T) {
	dir, base := testRepo(t)

	src, err := NewGitSource(dir, zap.NewNop())
	require.NoError(t, err)

	window := Window{Since: base.Add(-time.Minute)}
	first, err := src.Changes(context.Background(), window, nil)
	require.NoError(t, err)
	second, err := src.Changes(context.Background(), window, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGitSource_Changes_PathFilters(t *testing.T) {
	dir, base := testRepo(t)

	src, err := NewGitSource(dir, zap.NewNop())
	require.NoError(t, err)

	records, err := src.Changes(context.Background(), Window{Since: base.Add(-time.Minute)}, []string{"Sources/"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		for _, f := range r.Files {
			assert.Contains(t, f.Path, "Sources/")
		}
	}
}

func TestGitSource_Changes_Window(t *testing.T) {
	dir, base := testRepo(t)

	src, err := NewGitSource(dir, zap.NewNop())
	require.NoError(t, err)

	// Only the last commit falls inside the window.
	records, err := src.Changes(context.Background(), Window{Since: base.Add(90 * time.Minute)}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "add tests", records[0].Message)
}

func TestMatchesFilters(t *testing.T) {
	assert.True(t, matchesFilters("Sources/Core/A.swift", nil))
	assert.True(t, matchesFilters("Sources/Core/A.swift", []string{"Sources/"}))
	assert.False(t, matchesFilters("Tests/ATests.swift", []string{"Sources/"}))
	assert.True(t, matchesFilters("Tests/ATests.swift", []string{"Sources/", "Tests/"}))
}

func TestGithubStatus(t *testing.T) {
	assert.Equal(t, StatusAdded, githubStatus("added"))
	assert.Equal(t, StatusDeleted, githubStatus("removed"))
	assert.Equal(t, StatusModified, githubStatus("modified"))
	assert.Equal(t, StatusModified, githubStatus("renamed"))
}

func TestFileChangeLines(t *testing.T) {
	fc := FileChange{Added: 30, Removed: 25}
	assert.Equal(t, 55, fc.Lines())
}
