package security

import (
	"encoding/json"
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// EventType categorizes audit events.
type EventType string

// Audit event types covering every pipeline gate and execution outcome.
const (
	EventValidate     EventType = "validate"
	EventViolation    EventType = "violation"
	EventHookBlock    EventType = "hook_block"
	EventPermission   EventType = "permission"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventTimeout      EventType = "timeout"
	EventTransport    EventType = "transport"
	EventPolicyReload EventType = "policy_reload"
	EventServerLaunch EventType = "server_launch"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent (useful for testing).
	Writer io.Writer

	// OnEvent, if non-nil, is called for every event (used in tests).
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing. Defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL. A nil *AuditLogger
// is valid and drops all events, so callers never nil-check.
type AuditLogger struct {
	writer  io.Writer
	onEvent func(AuditEvent)
	now     func() time.Time
	mu      sync.Mutex
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:  cfg.Writer,
		onEvent: cfg.OnEvent,
		now:     now,
	}
}

// Log writes an audit event. The timestamp is set automatically and the
// caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()
	event.Detail = TruncateDetail(event.Detail)

	if len(event.Metadata) > 0 {
		cp := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			cp[k] = v
		}
		event.Metadata = cp
	}

	// Dispatch and write under one lock so event order is consistent.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}

// maxAuditDetailLen caps audit detail strings so large tool outputs cannot
// bloat the log.
const maxAuditDetailLen = 4096

// TruncateDetail shortens a string to maxAuditDetailLen, walking back to a
// valid UTF-8 rune boundary so multi-byte characters are never split.
func TruncateDetail(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
