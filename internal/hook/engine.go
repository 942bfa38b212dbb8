package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// registration pairs a compiled matcher with its definition.
type registration struct {
	matcher Matcher
	def     Definition
}

// Engine holds the configured hooks and fires them at lifecycle events.
// Registration happens once at session start; Fire is safe for concurrent
// use afterwards.
type Engine struct {
	hooks          map[Event][]registration
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// EngineConfig configures a hook engine.
type EngineConfig struct {
	// DefaultTimeout bounds hook commands whose definition has none.
	DefaultTimeout time.Duration

	// Logger receives non-blocking hook failures. Nil discards.
	Logger *slog.Logger
}

// NewEngine creates an empty hook engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{
		hooks:          make(map[Event][]registration),
		defaultTimeout: timeout,
		logger:         logger,
	}
}

// Register adds a hook definition for an event. Definitions fire in
// registration order. The matcher is compiled here so malformed expressions
// fail at configuration time.
func (e *Engine) Register(event Event, def Definition) error {
	if !event.Valid() {
		return fmt.Errorf("hook: unknown event %q", event)
	}
	if len(def.Commands) == 0 {
		return fmt.Errorf("hook: definition for %s has no commands", event)
	}
	for _, cmd := range def.Commands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("hook: definition for %s has an empty command", event)
		}
	}
	matcher, err := ParseMatcher(def.Matcher)
	if err != nil {
		return err
	}
	e.hooks[event] = append(e.hooks[event], registration{matcher: matcher, def: def})
	return nil
}

// Fire runs all hooks registered for the event whose matcher selects the
// context's tool. Commands run in order; the first exit-2 short-circuits
// the event and returns a blocked outcome with the command's stderr as the
// reason. Timeouts and other non-zero exits are logged and do not block.
func (e *Engine) Fire(ctx context.Context, event Event, hctx Context) (Outcome, error) {
	if !event.Valid() {
		return Outcome{}, fmt.Errorf("hook: unknown event %q", event)
	}

	regs := e.hooks[event]
	if len(regs) == 0 {
		return Outcome{}, nil
	}

	hctx.Event = event
	payload, err := json.Marshal(hctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("hook: marshal context: %w", err)
	}

	for _, reg := range regs {
		if !reg.matcher.Match(hctx.ToolName, hctx.PrimaryArg) {
			continue
		}

		timeout := reg.def.Timeout
		if timeout <= 0 {
			timeout = e.defaultTimeout
		}

		for _, command := range reg.def.Commands {
			res, runErr := runCommand(ctx, command, payload, timeout)
			switch {
			case runErr != nil:
				// Runner failures (shell missing) are hook bugs:
				// fail-open, logged.
				e.logger.Warn("hook: command failed to run",
					"event", string(event),
					"command", command,
					"error", runErr,
				)
			case res.timedOut:
				e.logger.Warn("hook: command timed out",
					"event", string(event),
					"command", command,
					"timeout", timeout,
				)
			case res.exitCode == blockExitCode:
				return Outcome{
					Blocked: true,
					Reason:  strings.TrimSpace(res.stderr),
				}, nil
			case res.exitCode != 0:
				e.logger.Warn("hook: command exited non-zero",
					"event", string(event),
					"command", command,
					"exit_code", res.exitCode,
					"stderr", strings.TrimSpace(res.stderr),
				)
			}
		}
	}
	return Outcome{}, nil
}

// Registered reports how many definitions are bound to the event.
func (e *Engine) Registered(event Event) int {
	return len(e.hooks[event])
}
