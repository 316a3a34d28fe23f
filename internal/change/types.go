package change

import (
	"context"
	"time"
)

// File change statuses as reported by the underlying source.
const (
	StatusAdded    = "A"
	StatusModified = "M"
	StatusDeleted  = "D"
)

// FileChange is a single file touched by a commit.
type FileChange struct {
	Path    string
	Status  string
	Added   int
	Removed int
	// Patch is the raw diff text for this file. May be empty when the
	// source cannot produce one (initial commits, binary files).
	Patch string
}

// Lines returns the total changed line count.
func (f FileChange) Lines() int {
	return f.Added + f.Removed
}

// Record is a discrete commit with per-file diff metadata. Records are
// ephemeral: they exist for one ingestion pass and are discarded after
// reconciliation.
type Record struct {
	Hash    string
	Author  string
	Email   string
	Message string
	Time    time.Time
	Files   []FileChange
}

// Window bounds an ingestion pass in time. A zero Until means "now".
type Window struct {
	Since time.Time
	Until time.Time
}

// Source produces an ordered sequence of change records for a time
// window. Implementations must return records oldest-first and be
// deterministic: re-running with an identical window and repository state
// yields identical output.
type Source interface {
	Changes(ctx context.Context, window Window, pathFilters []string) ([]Record, error)
}

// matchesFilters reports whether path passes the prefix filters. Empty
// filters admit everything.
func matchesFilters(path string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, prefix := range filters {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
