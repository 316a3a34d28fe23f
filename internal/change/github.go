package change

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GitHubSource reads commit history from the GitHub commits API. It is
// used when the reference repository is not checked out locally.
type GitHubSource struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
}

// NewGitHubSource creates a change source over a GitHub repository.
func NewGitHubSource(ctx context.Context, owner, repo, token string, logger *zap.Logger) (*GitHubSource, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token not set")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	return &GitHubSource{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		logger: logger.Named("change"),
	}, nil
}

// Changes lists commits in the window and fetches per-commit file details.
// The commits API orders newest-first; results are re-sorted oldest-first
// to match the Source contract.
func (s *GitHubSource) Changes(ctx context.Context, window Window, pathFilters []string) ([]Record, error) {
	opts := &github.CommitsListOptions{
		Since:       window.Since,
		Until:       window.Until,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var records []Record
	for {
		commits, resp, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits: %w", err)
		}

		for _, commit := range commits {
			record, err := s.recordFromCommit(ctx, commit.GetSHA())
			if err != nil {
				s.logger.Warn("skipping commit without details",
					zap.String("hash", commit.GetSHA()),
					zap.Error(err),
				)
				continue
			}
			record.filterFiles(pathFilters)
			if len(record.Files) > 0 {
				records = append(records, *record)
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sortRecords(records)
	return records, nil
}

// recordFromCommit fetches a single commit with its file list.
func (s *GitHubSource) recordFromCommit(ctx context.Context, sha string) (*Record, error) {
	commit, _, err := s.client.Repositories.GetCommit(ctx, s.owner, s.repo, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching commit %s: %w", sha, err)
	}

	record := &Record{
		Hash:    commit.GetSHA(),
		Author:  commit.GetCommit().GetAuthor().GetName(),
		Email:   commit.GetCommit().GetAuthor().GetEmail(),
		Message: commit.GetCommit().GetMessage(),
		Time:    commit.GetCommit().GetAuthor().GetDate().Time.UTC(),
	}

	for _, file := range commit.Files {
		record.Files = append(record.Files, FileChange{
			Path:    file.GetFilename(),
			Status:  githubStatus(file.GetStatus()),
			Added:   file.GetAdditions(),
			Removed: file.GetDeletions(),
			Patch:   file.GetPatch(),
		})
	}
	return record, nil
}

// filterFiles drops files outside the path filters.
func (r *Record) filterFiles(filters []string) {
	if len(filters) == 0 {
		return
	}
	kept := r.Files[:0]
	for _, f := range r.Files {
		if matchesFilters(f.Path, filters) {
			kept = append(kept, f)
		}
	}
	r.Files = kept
}

// githubStatus maps GitHub file statuses onto the A/M/D convention.
func githubStatus(status string) string {
	switch status {
	case "added":
		return StatusAdded
	case "removed":
		return StatusDeleted
	default:
		return StatusModified
	}
}
