package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// DatabaseConfig selects the store used by `taskboard serve`.
type DatabaseConfig struct {
	Driver string `json:"driver"` // "sqlite", "memory" or "postgres"
	DSN    string `json:"dsn"`    // File path for sqlite, connection string for postgres
}

// UserConfig is the acting dashboard user of the board client.
// Authentication is external; these values are forwarded as-is.
type UserConfig struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"` // ADMIN, MANAGER, EMPLOYEE or CLIENT
}

// ReassignmentConfig holds the configurable parts of the reassignment workflow.
type ReassignmentConfig struct {
	AllowAfterRejection bool `json:"allow_after_rejection"` // Permit a new request after a rejection
	RetainPriorAssignee bool `json:"retain_prior_assignee"` // Keep the requester as a read-only entry on approval
}

// Duration is a time.Duration that reads and writes as "1s"-style strings.
// Bare numbers are taken as seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Config is the top-level configuration.
type Config struct {
	ServerURL          string             `json:"server_url"`  // REST API the board client talks to
	ListenAddr         string             `json:"listen_addr"` // Address `taskboard serve` binds
	Database           DatabaseConfig     `json:"database"`
	User               UserConfig         `json:"user"`
	Reassignment       ReassignmentConfig `json:"reassignment"`
	TickInterval       Duration           `json:"tick_interval"`       // Live timer display refresh
	RefreshConcurrency int                `json:"refresh_concurrency"` // Parallel fetches when loading a board
	LogLevel           string             `json:"log_level"`           // DEBUG, INFO, WARN or ERROR
	LogFile            string             `json:"log_file,omitempty"`  // Empty logs to stderr
}
