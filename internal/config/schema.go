// Package config handles YAML configuration loading, environment
// variable expansion, and structural validation for patina.
package config

import (
	"time"

	"github.com/postrv/patina/internal/capability"
	"github.com/postrv/patina/internal/hook"
	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is
	// supported.
	Version string `yaml:"version"`

	// Session holds per-session settings.
	Session SessionConfig `yaml:"session"`

	// Security is the active security policy. Omitted sections fall
	// back to the built-in defaults.
	Security *security.Policy `yaml:"security,omitempty"`

	// Permissions configures the approval rule store.
	Permissions PermissionsConfig `yaml:"permissions"`

	// Hooks maps lifecycle event names to hook definitions.
	Hooks map[string][]hook.Definition `yaml:"hooks,omitempty"`

	// Servers lists configured capability servers.
	Servers []capability.ServerConfig `yaml:"servers,omitempty"`

	// Scheduler controls execution fan-out and deadlines.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Telemetry configures trace export.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Reload configures periodic policy reload.
	Reload ReloadConfig `yaml:"reload"`
}

// SessionConfig identifies the working root for filesystem tools.
type SessionConfig struct {
	// Root is the working directory tools operate within. Defaults to
	// the process working directory.
	Root string `yaml:"root,omitempty"`
}

// PermissionsConfig controls approval rule persistence.
type PermissionsConfig struct {
	// StorePath is the SQLite database for persisted rules. Empty
	// disables persistence; AllowAlways then lasts one session.
	StorePath string `yaml:"store_path,omitempty"`
}

// SchedulerConfig bounds execution.
type SchedulerConfig struct {
	// Concurrency is the read-only fan-out limit. Zero means 8.
	Concurrency int `yaml:"concurrency,omitempty"`

	// CallTimeout is the hard per-call deadline. Zero uses the security
	// policy's command timeout.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
}

// MetricsConfig configures the metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// ReloadConfig schedules policy reloads. The active policy is replaced
// atomically between pipeline invocations, never mid-call.
type ReloadConfig struct {
	// Cron is a cron expression for periodic reload checks. Empty
	// disables scheduled reload.
	Cron string `yaml:"cron,omitempty"`
}
