package config

import (
	"errors"
	"fmt"

	"github.com/postrv/patina/internal/hook"
)

// Validate checks the structural validity of a Config. It verifies the
// version field, the hook event names and matcher expressions, the
// capability server entries, and the scheduler bounds. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateHooks(cfg.Hooks)...)
	errs = append(errs, validateServers(cfg)...)

	if cfg.Scheduler.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.concurrency must be non-negative, got %d", cfg.Scheduler.Concurrency))
	}
	if cfg.Scheduler.CallTimeout < 0 {
		errs = append(errs, errors.New("config: scheduler.call_timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

func validateHooks(hooks map[string][]hook.Definition) []error {
	var errs []error
	for eventName, defs := range hooks {
		if !hook.Event(eventName).Valid() {
			errs = append(errs, fmt.Errorf("config: hooks: unknown event %q", eventName))
		}
		for i, def := range defs {
			if len(def.Commands) == 0 {
				errs = append(errs, fmt.Errorf("config: hooks.%s[%d]: at least one command is required", eventName, i))
			}
			if _, err := hook.ParseMatcher(def.Matcher); err != nil {
				errs = append(errs, fmt.Errorf("config: hooks.%s[%d]: %w", eventName, i, err))
			}
			if def.Timeout < 0 {
				errs = append(errs, fmt.Errorf("config: hooks.%s[%d]: timeout must be non-negative", eventName, i))
			}
		}
	}
	return errs
}

func validateServers(cfg *Config) []error {
	var errs []error
	seen := make(map[string]bool, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("config: servers[%d]: name is required", i))
			continue
		}
		if seen[srv.Name] {
			errs = append(errs, fmt.Errorf("config: servers[%d]: duplicate name %q", i, srv.Name))
		}
		seen[srv.Name] = true
		if (srv.Command == "") == (srv.URL == "") {
			errs = append(errs, fmt.Errorf("config: servers[%d] (%s): exactly one of command and url must be set", i, srv.Name))
		}
	}
	return errs
}
