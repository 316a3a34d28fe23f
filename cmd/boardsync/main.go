// Package main implements the boardsync CLI: synchronizing a project
// board with repository changes, reviewing ported implementations, and
// managing card workflow.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/audit"
	"github.com/fyrsmithlabs/boardsync/internal/board"
	"github.com/fyrsmithlabs/boardsync/internal/change"
	"github.com/fyrsmithlabs/boardsync/internal/config"
	"github.com/fyrsmithlabs/boardsync/internal/engine"
	"github.com/fyrsmithlabs/boardsync/internal/logging"
	"github.com/fyrsmithlabs/boardsync/internal/workflow"
)

var (
	// cfgFile is the config file path; empty uses the default location.
	cfgFile string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "boardsync",
	Short: "Keep a project board synchronized with repository changes",
	Long: `boardsync keeps a project board's task cards synchronized with changes
in a reference source repository and audits whether the ported target
implementation satisfies each tracked change.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(statusCmd)
}

// app bundles the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *board.Client
	engine   *engine.Engine
	workflow *workflow.Engine
}

// newApp loads configuration and wires the pipeline. Configuration
// errors are the only fatal startup errors.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := board.NewClient(board.Config{
		BaseURL:           cfg.Board.BaseURL,
		Key:               cfg.Board.Key,
		Token:             cfg.Board.Token,
		RequestsPerSecond: cfg.Board.RequestsPerSecond,
		Burst:             cfg.Board.Burst,
		MaxRetries:        cfg.Board.MaxRetries,
		InitialBackoff:    cfg.Board.InitialBackoff.Duration(),
		MaxBackoff:        cfg.Board.MaxBackoff.Duration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create board client: %w", err)
	}

	source, err := newSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	auditor, err := audit.New(audit.Config{
		ReferenceRoot:     cfg.Repo.ReferencePath,
		TargetRoot:        cfg.Repo.TargetPath,
		ReferenceLanguage: cfg.Audit.ReferenceLanguage,
		TargetLanguage:    cfg.Audit.TargetLanguage,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auditor: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		engine: engine.New(cfg, source, client, auditor, logger),
		workflow: workflow.New(client, cfg.Board.BoardID, workflow.ListNames{
			Backlog: cfg.Board.BacklogList,
			ToDo:    cfg.Board.TodoList,
			Doing:   cfg.Board.DoingList,
			Done:    cfg.Board.DoneList,
		}, cfg.Workflow.CategoryTerms, logger),
	}, nil
}

// newSource picks the change source: the GitHub API when a remote
// reference repo is configured, the local clone otherwise.
func newSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (change.Source, error) {
	gh := cfg.Repo.GitHub
	if gh.Owner != "" && gh.Repo != "" {
		return change.NewGitHubSource(ctx, gh.Owner, gh.Repo, gh.Token, logger)
	}
	source, err := change.NewGitSource(cfg.Repo.ReferencePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference repository: %w", err)
	}
	return source, nil
}

func (a *app) close() {
	_ = logging.Sync(a.logger)
}
