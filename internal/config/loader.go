package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/task"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths, then applies
// .env and TASKBOARD_* environment overrides.
// Global: ~/.taskboard/config.json
// Project: .taskboard/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	cfg, err := Load(
		filepath.Join(homeDir, ".taskboard", "config.json"),
		filepath.Join(".taskboard", "config.json"),
	)
	if err != nil {
		return nil, err
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// mergeConfigFile overlays the fields present in a JSON file onto base.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Unmarshal keeps every field the file leaves out.
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile exports the variables of a dotenv file that are not already
// set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from TASKBOARD_* variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TASKBOARD_SERVER_URL":  &cfg.ServerURL,
		"TASKBOARD_LISTEN_ADDR": &cfg.ListenAddr,
		"TASKBOARD_DB_DRIVER":   &cfg.Database.Driver,
		"TASKBOARD_DB_DSN":      &cfg.Database.DSN,
		"TASKBOARD_USER_ID":     &cfg.User.ID,
		"TASKBOARD_USER_NAME":   &cfg.User.Name,
		"TASKBOARD_ROLE":        &cfg.User.Role,
		"TASKBOARD_LOG_LEVEL":   &cfg.LogLevel,
		"TASKBOARD_LOG_FILE":    &cfg.LogFile,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("TASKBOARD_TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASKBOARD_TICK_INTERVAL: %w", err)
		}
		cfg.TickInterval = Duration{d}
	}
	if v, ok := lookup("TASKBOARD_REFRESH_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKBOARD_REFRESH_CONCURRENCY: %w", err)
		}
		cfg.RefreshConcurrency = n
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := task.ParseRole(c.User.Role); err != nil {
		return fmt.Errorf("user.role: %w", err)
	}
	if c.TickInterval.Duration < time.Second {
		return fmt.Errorf("tick_interval must be at least 1s, got %s", c.TickInterval)
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("refresh_concurrency must be positive, got %d", c.RefreshConcurrency)
	}
	switch c.Database.Driver {
	case "sqlite", "memory", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	return nil
}

// Actor returns the configured acting user.
func (c *Config) Actor() (task.User, error) {
	role, err := task.ParseRole(c.User.Role)
	if err != nil {
		return task.User{}, err
	}
	if c.User.ID == "" {
		return task.User{}, fmt.Errorf("user.id is required")
	}
	return task.User{ID: c.User.ID, Name: c.User.Name, Role: role}, nil
}

// Policy returns the reassignment policy.
func (c *Config) Policy() lifecycle.ReassignPolicy {
	return lifecycle.ReassignPolicy{
		AllowAfterRejection: c.Reassignment.AllowAfterRejection,
		RetainPriorAssignee: c.Reassignment.RetainPriorAssignee,
	}
}
