package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "BOARDSYNC_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BOARDSYNC_BOARD_TOKEN, BOARDSYNC_LOGGING_LEVEL, ...)
//  2. YAML config file (~/.config/boardsync/config.yaml by default)
//  3. Hardcoded defaults
//
// The config file, when present, must have 0600 or 0400 permissions and be
// under 1MB; board tokens live in it, so world-readable files are rejected.
//
// Environment variables are namespaced with BOARDSYNC_ and map onto YAML
// fields by splitting on the first underscore after the prefix:
//
//	BOARDSYNC_BOARD_TOKEN     -> board.token
//	BOARDSYNC_LOGGING_LEVEL   -> logging.level
//	BOARDSYNC_REPO_TARGET_PATH -> repo.target_path
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "boardsync", "config.yaml")
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// BOARDSYNC_BOARD_TOKEN -> board.token
		// Split on the first underscore only: section.field_name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip the permission check on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Board defaults
	if cfg.Board.BaseURL == "" {
		cfg.Board.BaseURL = "https://api.trello.com/1"
	}
	if cfg.Board.BacklogList == "" {
		cfg.Board.BacklogList = "Backlog"
	}
	if cfg.Board.TodoList == "" {
		cfg.Board.TodoList = "To Do"
	}
	if cfg.Board.DoingList == "" {
		cfg.Board.DoingList = "Doing"
	}
	if cfg.Board.DoneList == "" {
		cfg.Board.DoneList = "Done"
	}
	if cfg.Board.RequestsPerSecond == 0 {
		cfg.Board.RequestsPerSecond = 2
	}
	if cfg.Board.Burst == 0 {
		cfg.Board.Burst = 1
	}
	if cfg.Board.MaxRetries == 0 {
		cfg.Board.MaxRetries = 3
	}
	if cfg.Board.InitialBackoff == 0 {
		cfg.Board.InitialBackoff = Duration(time.Second)
	}
	if cfg.Board.MaxBackoff == 0 {
		cfg.Board.MaxBackoff = Duration(30 * time.Second)
	}

	// Classifier defaults mirror the reference SDK layout: library code
	// lives under Sources/, tests and generated code never produce tasks.
	if len(cfg.Classifier.AllowPrefixes) == 0 {
		cfg.Classifier.AllowPrefixes = []string{"Sources/"}
	}
	if len(cfg.Classifier.DenyPrefixes) == 0 {
		cfg.Classifier.DenyPrefixes = []string{"Tests/", "Sources/Generated/"}
	}
	if len(cfg.Classifier.Keywords) == 0 {
		cfg.Classifier.Keywords = map[string]float64{
			"Manager":   1.0,
			"Component": 0.9,
			"View":      0.8,
			"Config":    0.8,
			"Model":     0.7,
			"Network":   0.7,
			"Cache":     0.6,
			"Service":   0.6,
		}
	}
	if cfg.Classifier.LineThreshold == 0 {
		cfg.Classifier.LineThreshold = 50
	}

	// Reconcile defaults
	if cfg.Reconcile.SimilarityThreshold == 0 {
		cfg.Reconcile.SimilarityThreshold = 0.5
	}
	if cfg.Reconcile.Workers == 0 {
		cfg.Reconcile.Workers = 4
	}

	// Audit defaults
	if cfg.Audit.ReferenceLanguage == "" {
		cfg.Audit.ReferenceLanguage = "swift"
	}
	if cfg.Audit.TargetLanguage == "" {
		cfg.Audit.TargetLanguage = "kotlin"
	}

	// Workflow defaults
	if len(cfg.Workflow.CategoryTerms) == 0 {
		cfg.Workflow.CategoryTerms = []string{
			"engagement", "poll", "contest", "vote", "real-time", "live",
		}
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = map[string]string{"service": "boardsync"}
	}
}
