// Package config provides configuration loading for boardsync.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Every section has hardcoded defaults so a minimal config file
// (board credentials plus repository paths) is enough to run.
package config

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/boardsync/internal/logging"
)

// Config holds the complete boardsync configuration.
type Config struct {
	Board      BoardConfig      `koanf:"board"`
	Repo       RepoConfig       `koanf:"repo"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Reconcile  ReconcileConfig  `koanf:"reconcile"`
	Audit      AuditConfig      `koanf:"audit"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
}

// BoardConfig holds board API client configuration.
type BoardConfig struct {
	BaseURL string `koanf:"base_url"`
	Key     string `koanf:"key"`
	Token   string `koanf:"token"`
	BoardID string `koanf:"board_id"`

	// List names on the board. Custom boards may rename the standard
	// columns; the workflow engine resolves them by these names.
	BacklogList string `koanf:"backlog_list"`
	TodoList    string `koanf:"todo_list"`
	DoingList   string `koanf:"doing_list"`
	DoneList    string `koanf:"done_list"`

	// DefaultMembers are member usernames assigned to synthesized cards
	// when no commit author matches the board member registry.
	DefaultMembers []string `koanf:"default_members"`

	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	MaxRetries        int      `koanf:"max_retries"`
	InitialBackoff    Duration `koanf:"initial_backoff"`
	MaxBackoff        Duration `koanf:"max_backoff"`
}

// RepoConfig holds reference and target repository configuration.
type RepoConfig struct {
	// ReferencePath is the local checkout of the reference implementation.
	ReferencePath string `koanf:"reference_path"`
	// TargetPath is the local checkout of the ported implementation.
	TargetPath string `koanf:"target_path"`
	// GuidePath is the numbered-section implementation guide document.
	GuidePath string `koanf:"guide_path"`

	// GitHub configures the remote change source. When Owner and Repo are
	// set, commit history is read from the GitHub API instead of the
	// local reference checkout.
	GitHub GitHubConfig `koanf:"github"`
}

// GitHubConfig holds the optional remote change source settings.
type GitHubConfig struct {
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`
	Token string `koanf:"token"`
}

// ClassifierConfig holds change relevance rules.
type ClassifierConfig struct {
	AllowPrefixes []string           `koanf:"allow_prefixes"`
	DenyPrefixes  []string           `koanf:"deny_prefixes"`
	Keywords      map[string]float64 `koanf:"keywords"`
	LineThreshold int                `koanf:"line_threshold"`
}

// ReconcileConfig holds card matching and plan application settings.
type ReconcileConfig struct {
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	Workers             int     `koanf:"workers"`
}

// AuditConfig holds implementation audit settings.
type AuditConfig struct {
	ReferenceLanguage string `koanf:"reference_language"`
	TargetLanguage    string `koanf:"target_language"`
	MoveOnFail        bool   `koanf:"move_on_fail"`
}

// WorkflowConfig holds workflow engine settings.
type WorkflowConfig struct {
	// CategoryTerms identify the feature grouping used for priority
	// promotion (e.g. real-time/engagement work).
	CategoryTerms []string `koanf:"category_terms"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Validate validates the configuration.
//
// Board credentials are required: a missing key or token is a startup
// error, not a per-item one.
func (c *Config) Validate() error {
	if c.Board.BaseURL == "" {
		return errors.New("board.base_url is required")
	}
	if c.Board.Key == "" || c.Board.Token == "" {
		return errors.New("board.key and board.token are required")
	}
	if c.Board.BoardID == "" {
		return errors.New("board.board_id is required")
	}
	if c.Board.RequestsPerSecond <= 0 {
		return fmt.Errorf("board.requests_per_second must be positive, got %v", c.Board.RequestsPerSecond)
	}
	if c.Board.MaxRetries < 0 {
		return fmt.Errorf("board.max_retries must be >= 0, got %d", c.Board.MaxRetries)
	}
	if c.Reconcile.SimilarityThreshold <= 0 || c.Reconcile.SimilarityThreshold > 1 {
		return fmt.Errorf("reconcile.similarity_threshold must be in (0,1], got %v", c.Reconcile.SimilarityThreshold)
	}
	if c.Reconcile.Workers < 1 {
		return fmt.Errorf("reconcile.workers must be >= 1, got %d", c.Reconcile.Workers)
	}
	if c.Classifier.LineThreshold < 0 {
		return fmt.Errorf("classifier.line_threshold must be >= 0, got %d", c.Classifier.LineThreshold)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
