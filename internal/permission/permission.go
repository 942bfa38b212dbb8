// Package permission tracks user approval decisions for tool calls.
//
// Decisions are looked up by a normalized call signature. Session-scoped
// rules live in memory; AllowAlways and Deny answers are appended to a
// persisted store so identical calls in later sessions resolve without a
// prompt. The persisted store is append-only, the most recent rule for a
// signature wins.
package permission

import (
	"errors"
	"time"
)

// Decision is the outcome of resolving a call against the rule stores.
type Decision string

const (
	// DecisionAllowOnce permits the current call only.
	DecisionAllowOnce Decision = "allow_once"

	// DecisionAllowAlways permits the call and all future calls with the
	// same signature.
	DecisionAllowAlways Decision = "allow_always"

	// DecisionDeny rejects the call. Recorded denials auto-resolve future
	// identical calls.
	DecisionDeny Decision = "deny"

	// DecisionNeedsPrompt means no rule matched and no prompter is
	// available to ask.
	DecisionNeedsPrompt Decision = "needs_prompt"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAllowOnce, DecisionAllowAlways, DecisionDeny, DecisionNeedsPrompt:
		return true
	}
	return false
}

// Scope says where a rule lives.
type Scope string

const (
	// ScopeSession rules are discarded when the session ends.
	ScopeSession Scope = "session"

	// ScopePersisted rules survive across sessions.
	ScopePersisted Scope = "persisted"
)

// Rule is one recorded decision for a signature.
type Rule struct {
	Signature string
	Decision  Decision
	Scope     Scope
	CreatedAt time.Time
}

// ErrDenied is returned when a call is rejected by a rule or by the user.
var ErrDenied = errors.New("permission denied")

// ErrPromptBlocked is returned (possibly wrapped) by a Prompter when
// something intercepted the prompt before the user saw it. The call is
// denied, but no rule is recorded: rules capture user answers only, and
// the user was never asked.
var ErrPromptBlocked = errors.New("permission prompt blocked")
