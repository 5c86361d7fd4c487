package config

import "time"

// DefaultConfig returns the configuration used when no file or variable
// overrides a field.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:  "http://localhost:8080",
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "taskboard.db",
		},
		User: UserConfig{
			Role: "EMPLOYEE",
		},
		Reassignment: ReassignmentConfig{
			AllowAfterRejection: true,
			RetainPriorAssignee: true,
		},
		TickInterval:       Duration{time.Second},
		RefreshConcurrency: 4,
		LogLevel:           "INFO",
	}
}
