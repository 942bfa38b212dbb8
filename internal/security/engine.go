package security

import (
	"fmt"
	"strings"
	"time"
)

// Engine is a compiled, immutable Policy. All checks are pure functions of
// the call and the policy: no side effects, no retained state, safe for
// concurrent use across parallel read-only calls.
type Engine struct {
	policy    Policy
	dangerous []compiledRule
	allowed   []compiledRule
	launch    launchRules
}

// NewEngine compiles a policy. Malformed patterns are compile errors, not
// silently dropped rules.
func NewEngine(policy Policy) (*Engine, error) {
	policy = policy.withDefaults()

	dangerous, err := compileRules(policy.DangerousPatterns)
	if err != nil {
		return nil, err
	}

	var allowed []compiledRule
	if policy.AllowlistMode {
		if len(policy.AllowedCommands) == 0 {
			return nil, fmt.Errorf("%w: allowlist mode requires at least one allowed command", ErrBadPattern)
		}
		res, err := compileAllowlist(policy.AllowedCommands)
		if err != nil {
			return nil, err
		}
		for _, re := range res {
			allowed = append(allowed, compiledRule{re: re})
		}
	}

	return &Engine{
		policy:    policy,
		dangerous: dangerous,
		allowed:   allowed,
		launch:    defaultLaunchRules(),
	}, nil
}

// Policy returns the policy this engine was compiled from.
func (e *Engine) Policy() Policy {
	return e.policy
}

// CommandTimeout returns the per-execution hard deadline.
func (e *Engine) CommandTimeout() time.Duration {
	return e.policy.CommandTimeout
}

// CheckCommand validates a shell command against the policy. In the default
// blocklist mode the normalized command is tested against the ordered
// dangerous patterns; in allowlist mode only explicitly allowed commands
// pass and the blocklist is irrelevant to acceptance.
func (e *Engine) CheckCommand(cmd string) error {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return fmt.Errorf("%w: empty command", ErrValidation)
	}
	if len(trimmed) > e.policy.MaxPayloadBytes {
		return fmt.Errorf("%w: command exceeds %d bytes", ErrValidation, e.policy.MaxPayloadBytes)
	}

	normalized := NormalizeCommand(trimmed)

	if e.policy.AllowlistMode {
		for _, rule := range e.allowed {
			if rule.re.MatchString(normalized) {
				return nil
			}
		}
		return fmt.Errorf("%w: command not on allowlist: %s", ErrViolation, headToken(normalized))
	}

	// Test both raw and normalized forms: normalization only widens the
	// net, it must never hide a literal match.
	for _, rule := range e.dangerous {
		if rule.re.MatchString(normalized) || rule.re.MatchString(trimmed) {
			return fmt.Errorf("%w: %s", ErrViolation, rule.reason)
		}
	}
	return nil
}

// CheckPayload validates the size and JSON depth of a tool input payload.
func (e *Engine) CheckPayload(data []byte) error {
	if err := ValidatePayloadSize(data, e.policy.MaxPayloadBytes); err != nil {
		return err
	}
	return ValidateJSONDepth(data, 0)
}

// headToken returns the first token of a command, for reject reasons that
// must not echo an entire hostile payload.
func headToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
