// Package config holds the framework configuration: where fact scripts
// live, how loudly runs report, and the tunables of the generative and
// history extensions. Values come from factual.yaml, overridden by
// FACTUAL_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no config flag is given.
const DefaultPath = "factual.yaml"

// Config holds all factual configuration.
type Config struct {
	// SourceRoots are the directories scanned for *.facts.go scripts.
	SourceRoots []string `yaml:"source_roots"`

	// PrintLevel is the console verbosity: silent, summary, normal, verbose.
	PrintLevel string `yaml:"print_level"`

	// Generations is how many cases each formula generates per check.
	Generations int `yaml:"generations"`

	// History configures the run journal.
	History HistoryConfig `yaml:"history"`

	// Autotest configures the watch-and-rerun loop.
	Autotest AutotestConfig `yaml:"autotest"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// HistoryConfig configures the SQLite run journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AutotestConfig configures the file watcher.
type AutotestConfig struct {
	// Debounce is how long the watcher waits for a file to settle.
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ValidationError reports a configuration value that was rejected at the
// point of use. The operation that received it is aborted; nothing is
// clamped or defaulted behind the caller's back.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s = %v: %s", e.Field, e.Value, e.Reason)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceRoots: []string{"."},
		PrintLevel:  "normal",
		Generations: 100,

		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".factual", "history.db"),
		},

		Autotest: AutotestConfig{
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, returning defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies FACTUAL_* environment variables. Values that
// need validation (generations) are applied verbatim; Validate catches the
// bad ones so they are rejected rather than silently repaired.
func (c *Config) applyEnvOverrides() {
	if roots := os.Getenv("FACTUAL_SOURCE_ROOTS"); roots != "" {
		c.SourceRoots = splitRoots(roots)
	}
	if level := os.Getenv("FACTUAL_PRINT_LEVEL"); level != "" {
		c.PrintLevel = level
	}
	if gens := os.Getenv("FACTUAL_GENERATIONS"); gens != "" {
		if n, err := strconv.Atoi(gens); err == nil {
			c.Generations = n
		} else {
			c.Generations = 0 // force a validation failure instead of ignoring
		}
	}
	if path := os.Getenv("FACTUAL_HISTORY_DB"); path != "" {
		c.History.Path = path
		c.History.Enabled = true
	}
	if level := os.Getenv("FACTUAL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func splitRoots(s string) []string {
	var roots []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	return roots
}

// SetGenerations changes the formula generation count. Zero and negative
// counts are rejected with a ValidationError and leave the config
// untouched.
func (c *Config) SetGenerations(n int) error {
	if n <= 0 {
		return &ValidationError{
			Field:  "generations",
			Value:  n,
			Reason: "must be a positive integer",
		}
	}
	c.Generations = n
	return nil
}

// GetDebounce returns the autotest debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Autotest.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

var validPrintLevels = []string{"silent", "summary", "normal", "verbose"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.SourceRoots) == 0 {
		return &ValidationError{Field: "source_roots", Value: c.SourceRoots, Reason: "at least one root is required"}
	}
	if c.Generations <= 0 {
		return &ValidationError{Field: "generations", Value: c.Generations, Reason: "must be a positive integer"}
	}

	valid := false
	for _, l := range validPrintLevels {
		if c.PrintLevel == l {
			valid = true
			break
		}
	}
	if !valid {
		return &ValidationError{
			Field:  "print_level",
			Value:  c.PrintLevel,
			Reason: fmt.Sprintf("must be one of %v", validPrintLevels),
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return &ValidationError{Field: "history.path", Value: "", Reason: "required when history is enabled"}
	}

	return nil
}
