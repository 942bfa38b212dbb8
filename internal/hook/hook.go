// Package hook runs user-configured external commands at pipeline lifecycle
// events. Hooks receive a JSON context on stdin and answer through their exit
// code: 0 continues, 2 blocks with the stderr text as the reason, anything
// else is logged and ignored. Hooks are fail-open for their own bugs and
// fail-closed only on the explicit exit-2 contract; a hanging hook is killed
// at its timeout and never stalls the pipeline.
package hook

import (
	"encoding/json"
	"time"
)

// Event is a lifecycle point at which hooks can fire.
type Event string

// The eleven lifecycle events.
const (
	EventPreToolUse        Event = "pre_tool_use"
	EventPostToolUse       Event = "post_tool_use"
	EventPostToolUseFailed Event = "post_tool_use_failure"
	EventPermissionRequest Event = "permission_request"
	EventUserPromptSubmit  Event = "user_prompt_submit"
	EventSessionStart      Event = "session_start"
	EventSessionEnd        Event = "session_end"
	EventNotification      Event = "notification"
	EventStop              Event = "stop"
	EventSubagentStop      Event = "subagent_stop"
	EventPreCompact        Event = "pre_compact"
)

// knownEvents is the closed set of valid events.
var knownEvents = map[Event]struct{}{
	EventPreToolUse: {}, EventPostToolUse: {}, EventPostToolUseFailed: {},
	EventPermissionRequest: {}, EventUserPromptSubmit: {}, EventSessionStart: {},
	EventSessionEnd: {}, EventNotification: {}, EventStop: {}, EventSubagentStop: {},
	EventPreCompact: {},
}

// Valid reports whether e is one of the known lifecycle events.
func (e Event) Valid() bool {
	_, ok := knownEvents[e]
	return ok
}

// Context is the structured payload delivered to hook commands as JSON on
// stdin. Fields are populated per event; absent fields are omitted.
type Context struct {
	Event      Event           `json:"hook_event_name"`
	SessionID  string          `json:"session_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput string          `json:"tool_response,omitempty"`
	Prompt     string          `json:"prompt,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`

	// PrimaryArg is the salient argument (shell command, file path)
	// extracted for argument-qualified matchers. Not serialized; the
	// full input is already present in ToolInput.
	PrimaryArg string `json:"-"`
}

// Definition is one user-configured hook: a matcher selecting tool
// invocations, an ordered list of commands, and a per-command timeout.
type Definition struct {
	// Matcher selects which tool names this hook intercepts. Empty or
	// "*" matches everything. See ParseMatcher for the syntax.
	Matcher string `yaml:"matcher"`

	// Commands run in order via the shell, each receiving the serialized
	// context on stdin.
	Commands []string `yaml:"commands"`

	// Timeout bounds each command. Zero uses the engine default.
	Timeout time.Duration `yaml:"timeout"`
}

// Outcome is the engine's verdict for one event.
type Outcome struct {
	// Blocked is true when a hook exited with code 2.
	Blocked bool

	// Reason is the blocking hook's stderr text.
	Reason string
}
