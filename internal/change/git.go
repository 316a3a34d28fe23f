// Package change reads commit history from a reference repository and
// produces ordered change records with per-file diff stats.
//
// Two sources are provided: GitSource walks a local clone with go-git,
// GitHubSource reads the commits API for a remotely hosted repository.
// Both honor the same Window/path-filter contract and return records
// oldest-first so downstream classification is deterministic and
// restartable.
package change

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// GitSource reads commit history from a local repository clone.
type GitSource struct {
	path   string
	logger *zap.Logger
}

// NewGitSource creates a change source over a local git repository.
func NewGitSource(path string, logger *zap.Logger) (*GitSource, error) {
	if path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &GitSource{path: path, logger: logger.Named("change")}, nil
}

// Changes returns commits in the window, oldest-first, with per-file diff
// stats. Commits whose files are all filtered out are dropped.
func (s *GitSource) Changes(ctx context.Context, window Window, pathFilters []string) ([]Record, error) {
	repo, err := git.PlainOpen(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", s.path, err)
	}

	opts := &git.LogOptions{Order: git.LogOrderCommitterTime}
	if !window.Since.IsZero() {
		since := window.Since
		opts.Since = &since
	}
	if !window.Until.IsZero() {
		until := window.Until
		opts.Until = &until
	}

	iter, err := repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var records []Record
	err = iter.ForEach(func(commit *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := s.recordFromCommit(ctx, commit, pathFilters)
		if err != nil {
			// A single undiffable commit should not abort the pass.
			s.logger.Warn("skipping undiffable commit",
				zap.String("hash", commit.Hash.String()),
				zap.Error(err),
			)
			return nil
		}
		if len(record.Files) > 0 {
			records = append(records, *record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating commits: %w", err)
	}

	sortRecords(records)
	return records, nil
}

// recordFromCommit builds a Record with stats and per-file patch text.
func (s *GitSource) recordFromCommit(ctx context.Context, commit *object.Commit, pathFilters []string) (*Record, error) {
	stats, err := commit.StatsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}

	patches := s.filePatches(ctx, commit)

	record := &Record{
		Hash:    commit.Hash.String(),
		Author:  commit.Author.Name,
		Email:   commit.Author.Email,
		Message: strings.TrimSpace(commit.Message),
		Time:    commit.Author.When.UTC(),
	}

	for _, stat := range stats {
		if !matchesFilters(stat.Name, pathFilters) {
			continue
		}
		fp := patches[stat.Name]
		record.Files = append(record.Files, FileChange{
			Path:    stat.Name,
			Status:  fp.status,
			Added:   stat.Addition,
			Removed: stat.Deletion,
			Patch:   fp.text,
		})
	}
	return record, nil
}

type filePatch struct {
	status string
	text   string
}

// filePatches diffs the commit against its first parent. Initial commits
// and diff failures yield patch-less file changes rather than an error.
func (s *GitSource) filePatches(ctx context.Context, commit *object.Commit) map[string]filePatch {
	result := make(map[string]filePatch)

	parent, err := commit.Parent(0)
	if err != nil {
		// Initial commit: everything it touches is an addition.
		if stats, serr := commit.StatsContext(ctx); serr == nil {
			for _, stat := range stats {
				result[stat.Name] = filePatch{status: StatusAdded}
			}
		}
		return result
	}

	patch, err := parent.PatchContext(ctx, commit)
	if err != nil {
		s.logger.Debug("patch computation failed",
			zap.String("hash", commit.Hash.String()),
			zap.Error(err),
		)
		return result
	}

	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		path, status := pathAndStatus(from, to)
		if path == "" {
			continue
		}
		entry := filePatch{status: status}
		if !fp.IsBinary() {
			entry.text = renderChunks(fp.Chunks())
		}
		result[path] = entry
	}
	return result
}

// pathAndStatus maps the from/to file pair to a path and A/M/D status.
func pathAndStatus(from, to diff.File) (string, string) {
	switch {
	case from == nil && to != nil:
		return to.Path(), StatusAdded
	case from != nil && to == nil:
		return from.Path(), StatusDeleted
	case from != nil && to != nil:
		return to.Path(), StatusModified
	default:
		return "", ""
	}
}

// renderChunks renders diff chunks as +/- prefixed lines, omitting
// unchanged context.
func renderChunks(chunks []diff.Chunk) string {
	var b strings.Builder
	for _, chunk := range chunks {
		var prefix string
		switch chunk.Type() {
		case diff.Add:
			prefix = "+"
		case diff.Delete:
			prefix = "-"
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(chunk.Content(), "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// sortRecords orders records oldest-first, breaking timestamp ties by
// hash so repeated runs are byte-identical.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Time.Equal(records[j].Time) {
			return records[i].Time.Before(records[j].Time)
		}
		return records[i].Hash < records[j].Hash
	})
}
