// Package security implements the static policy engine that guards tool
// execution. It validates shell commands against an ordered dangerous-pattern
// list (or an allowlist in high-assurance mode), confines filesystem paths to
// the session working root with symlink rejection, and vets capability server
// launch specifications before any process is spawned.
//
// Validation is purely static: the engine never executes anything and never
// mutates state. The blocklist is best effort, since no pattern list is
// complete against adversarial obfuscation. Allowlist mode is the closed
// alternative for deployments that need it.
package security

import (
	"fmt"
	"regexp"
	"time"
)

// Defaults applied when the corresponding Policy field is zero.
const (
	DefaultMaxPayloadBytes = 1 << 20 // 1 MiB
	DefaultCommandTimeout  = 2 * time.Minute
)

// PatternRule is one entry in the ordered dangerous-pattern list. Pattern is
// a regular expression matched against the normalized command text.
type PatternRule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// Policy is the declarative rule set for one session. It is immutable once
// compiled into an Engine; reload replaces the whole policy atomically
// between pipeline invocations, never mid-call.
type Policy struct {
	// DangerousPatterns are tested in order against the normalized
	// command. First match rejects.
	DangerousPatterns []PatternRule `yaml:"dangerous_patterns"`

	// ProtectedPaths are path prefixes that filesystem tools may never
	// touch, absolute or relative to the working root.
	ProtectedPaths []string `yaml:"protected_paths"`

	// AllowlistMode inverts the command check: only commands matching
	// AllowedCommands pass, everything else is rejected regardless of
	// the blocklist.
	AllowlistMode bool `yaml:"allowlist_mode"`

	// AllowedCommands are regular expressions; in allowlist mode a
	// normalized command must match one of them to run.
	AllowedCommands []string `yaml:"allowed_commands"`

	// MaxPayloadBytes caps the size of a tool call's input payload.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// CommandTimeout is the hard deadline for a single tool execution.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// defaultDangerousPatterns is the built-in blocklist. Order matters: more
// specific destructive patterns come first so their reasons surface.
var defaultDangerousPatterns = []PatternRule{
	{Pattern: `(?i)\brm\s+(-[a-z]+\s+)*(-[a-z]*r[a-z]*|--recursive)(\s|$)`, Reason: "recursive delete"},
	{Pattern: `(?i)\brm\s+(-[a-z]+\s+)*/(\s|$)`, Reason: "delete from filesystem root"},
	{Pattern: `--no-preserve-root|--preserve-root=false`, Reason: "root preservation disabled"},
	{Pattern: `(?i)\b(sudo|doas|pkexec)\b`, Reason: "privilege escalation"},
	{Pattern: `(?i)\bsu\s+(-|root)\b`, Reason: "privilege escalation"},
	{Pattern: `(?i)\bchmod\s+(-[a-z]+\s+)*(777|a\+rwx|\+s)\b`, Reason: "permission weakening"},
	{Pattern: `(?i)\bchown\s+(-[a-z]+\s+)*root\b`, Reason: "ownership change to root"},
	{Pattern: `(?i)\bdd\b.*\bof=/dev/`, Reason: "raw disk write"},
	{Pattern: `(?i)\b(mkfs|fdisk|parted|sfdisk)\b`, Reason: "disk formatting or partitioning"},
	{Pattern: `>\s*/dev/(sd|hd|nvme|vd)`, Reason: "raw device write"},
	{Pattern: `(?i)\b(curl|wget|fetch)\b[^|;]*\|\s*(ba|z|da|k)?sh\b`, Reason: "remote code execution via pipe"},
	{Pattern: `(?i)\b(shutdown|reboot|halt|poweroff)\b|\binit\s+0\b`, Reason: "system power management"},
	{Pattern: `(?i)\bhistory\s+-c\b|\bunset\s+HISTFILE\b|>\s*~?/?\.[a-z_]*history\b`, Reason: "history tampering"},
	{Pattern: `:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`, Reason: "fork bomb"},
	{Pattern: `(?i)\bmount\b`, Reason: "mount can expose host filesystem"},
}

// DefaultPolicy returns the built-in policy: blocklist mode with the default
// dangerous patterns and no protected paths.
func DefaultPolicy() Policy {
	return Policy{
		DangerousPatterns: append([]PatternRule(nil), defaultDangerousPatterns...),
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		CommandTimeout:    DefaultCommandTimeout,
	}
}

// withDefaults fills zero-valued limits.
func (p Policy) withDefaults() Policy {
	if p.MaxPayloadBytes <= 0 {
		p.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if p.CommandTimeout <= 0 {
		p.CommandTimeout = DefaultCommandTimeout
	}
	return p
}

// compiledRule pairs a compiled pattern with its reason.
type compiledRule struct {
	re     *regexp.Regexp
	reason string
}

// compileRules compiles pattern rules in order, rejecting malformed patterns
// as validation errors rather than ignoring them.
func compileRules(rules []PatternRule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("%w: dangerous pattern %d is empty", ErrBadPattern, i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: dangerous pattern %d: %v", ErrBadPattern, i, err)
		}
		compiled = append(compiled, compiledRule{re: re, reason: rule.Reason})
	}
	return compiled, nil
}

// compileAllowlist compiles allowlist patterns, anchoring each so a partial
// match cannot admit a longer hostile command.
func compileAllowlist(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, fmt.Errorf("%w: allowed command %d is empty", ErrBadPattern, i)
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: allowed command %d: %v", ErrBadPattern, i, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
