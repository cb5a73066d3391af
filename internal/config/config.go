// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for linesight.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation with clamping of out-of-range values.
//
// Configuration file locations (in order of precedence):
//   - Path passed explicitly (--config flag / LINESIGHT_CONFIG)
//   - ~/.linesight/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete linesight configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server" json:"server"`

	// Completion service (OpenAI-compatible) settings
	Completion CompletionConfig `toml:"completion" json:"completion"`

	// Vector store settings
	Vector VectorConfig `toml:"vector" json:"vector"`

	// Conversation storage settings
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Agent pipeline settings
	Agent AgentConfig `toml:"agent" json:"agent"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the listen address
	Host string `toml:"host" json:"host"`
	// Port is the listen port
	Port int `toml:"port" json:"port"`
	// RateLimitRPS is the per-client request rate limit (0 disables limiting)
	RateLimitRPS float64 `toml:"rate_limit_rps" json:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst allowance
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// CORSOrigins lists allowed origins; empty means same-origin only
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
}

// CompletionConfig contains the LLM completion service configuration.
type CompletionConfig struct {
	// BaseURL is the OpenAI-compatible endpoint base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey authenticates against the completion service
	APIKey string `toml:"api_key" json:"api_key"`
	// PlannerModel is the model used for plan generation
	PlannerModel string `toml:"planner_model" json:"planner_model"`
	// SynthesisModel is the model used for answer synthesis
	SynthesisModel string `toml:"synthesis_model" json:"synthesis_model"`
	// TimeoutSecs bounds a single completion call
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries bounds retry attempts on transient failures
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// VectorConfig contains the vector store configuration.
type VectorConfig struct {
	// BaseURL is the vector store REST endpoint
	BaseURL string `toml:"base_url" json:"base_url"`
	// DowntimeCollection is the downtime-log collection name
	DowntimeCollection string `toml:"downtime_collection" json:"downtime_collection"`
	// KnownIssueCollection is the known-issues collection name
	KnownIssueCollection string `toml:"known_issue_collection" json:"known_issue_collection"`
	// TimeoutSecs bounds a single store call
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig contains conversation log storage configuration.
type StorageConfig struct {
	// DBPath is the SQLite database file (empty = ~/.linesight/conversations.db)
	DBPath string `toml:"db_path" json:"db_path"`
}

// AgentConfig contains pipeline tuning knobs.
type AgentConfig struct {
	// MaxSteps is the hard ceiling on executed plan steps per turn.
	// Valid range is 1-20; values outside are clamped.
	MaxSteps int `toml:"max_steps" json:"max_steps"`
	// HistoryTurns is how many trailing messages feed the planner and
	// synthesizer. Valid range is 1-100; values outside are clamped.
	HistoryTurns int `toml:"history_turns" json:"history_turns"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8800,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			CORSOrigins:    nil,
		},
		Completion: CompletionConfig{
			BaseURL:        "http://127.0.0.1:8000/v1",
			APIKey:         "",
			PlannerModel:   "qwen2.5:14b",
			SynthesisModel: "qwen2.5:14b",
			TimeoutSecs:    120,
			MaxRetries:     2,
		},
		Vector: VectorConfig{
			BaseURL:              "http://127.0.0.1:8001",
			DowntimeCollection:   "downtime_logs",
			KnownIssueCollection: "known_issues",
			TimeoutSecs:          30,
		},
		Storage: StorageConfig{
			DBPath: "",
		},
		Agent: AgentConfig{
			MaxSteps:     5,
			HistoryTurns: 25,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the linesight configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".linesight"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDBPath returns the default SQLite database location.
func DefaultDBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default file location, falling back to
// built-in defaults when no file exists. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies LINESIGHT_* environment variables on top of the
// loaded configuration. Unset variables leave fields untouched.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LINESIGHT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LINESIGHT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LINESIGHT_COMPLETION_URL"); v != "" {
		c.Completion.BaseURL = v
	}
	if v := os.Getenv("LINESIGHT_COMPLETION_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv("LINESIGHT_PLANNER_MODEL"); v != "" {
		c.Completion.PlannerModel = v
	}
	if v := os.Getenv("LINESIGHT_SYNTHESIS_MODEL"); v != "" {
		c.Completion.SynthesisModel = v
	}
	if v := os.Getenv("LINESIGHT_VECTOR_URL"); v != "" {
		c.Vector.BaseURL = v
	}
	if v := os.Getenv("LINESIGHT_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration, clamping tunable ranges and
// returning errors for settings that cannot be repaired.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 1-65535", c.Server.Port),
		})
	}
	if c.Server.RateLimitRPS < 0 {
		c.Server.RateLimitRPS = 0
	}
	if c.Server.RateLimitBurst < 1 {
		c.Server.RateLimitBurst = 1
	}

	if !strings.HasPrefix(c.Completion.BaseURL, "http://") &&
		!strings.HasPrefix(c.Completion.BaseURL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "completion.base_url",
			Message: fmt.Sprintf("invalid URL %q, must start with http:// or https://", c.Completion.BaseURL),
		})
	}
	if !strings.HasPrefix(c.Vector.BaseURL, "http://") &&
		!strings.HasPrefix(c.Vector.BaseURL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "vector.base_url",
			Message: fmt.Sprintf("invalid URL %q, must start with http:// or https://", c.Vector.BaseURL),
		})
	}

	if c.Completion.TimeoutSecs < 1 {
		c.Completion.TimeoutSecs = 1
	}
	if c.Completion.MaxRetries < 0 {
		c.Completion.MaxRetries = 0
	}
	if c.Completion.MaxRetries > 5 {
		c.Completion.MaxRetries = 5
	}
	if c.Vector.TimeoutSecs < 1 {
		c.Vector.TimeoutSecs = 1
	}
	if c.Vector.DowntimeCollection == "" {
		c.Vector.DowntimeCollection = Default().Vector.DowntimeCollection
	}
	if c.Vector.KnownIssueCollection == "" {
		c.Vector.KnownIssueCollection = Default().Vector.KnownIssueCollection
	}

	// Clamp pipeline knobs rather than failing startup.
	if c.Agent.MaxSteps < 1 {
		c.Agent.MaxSteps = 1
	}
	if c.Agent.MaxSteps > 20 {
		c.Agent.MaxSteps = 20
	}
	if c.Agent.HistoryTurns < 1 {
		c.Agent.HistoryTurns = 1
	}
	if c.Agent.HistoryTurns > 100 {
		c.Agent.HistoryTurns = 100
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Addr returns the server listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ResolveDBPath returns the configured database path, falling back to the
// default location and creating the parent directory as needed.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}
	return DefaultDBPath()
}
