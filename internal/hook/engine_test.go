//go:build unix

package hook

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{
		DefaultTimeout: 10 * time.Second,
		Logger:         slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
}

func TestEngineFireNoHooks(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "bash"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Blocked {
		t.Fatal("no hooks registered, nothing should block")
	}
}

func TestEngineFireAllow(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if err := e.Register(EventPreToolUse, Definition{Commands: []string{"exit 0"}}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "bash"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Blocked {
		t.Fatalf("exit 0 must not block, got reason %q", out.Reason)
	}
}

func TestEngineFireBlockWithReason(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	err := e.Register(EventPreToolUse, Definition{
		Commands: []string{"echo 'touching protected files' >&2; exit 2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "write_file"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Blocked {
		t.Fatal("exit 2 must block")
	}
	if out.Reason != "touching protected files" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestEngineFireBlockShortCircuits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	e := newTestEngine(t)
	if err := e.Register(EventPreToolUse, Definition{Commands: []string{"exit 2"}}); err != nil {
		t.Fatal(err)
	}
	err := e.Register(EventPreToolUse, Definition{
		Commands: []string{"touch " + marker},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "bash"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Blocked {
		t.Fatal("expected block")
	}
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Fatal("hooks after a block must not run")
	}
}

func TestEngineFireNonZeroExitDoesNotBlock(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if err := e.Register(EventPostToolUse, Definition{Commands: []string{"exit 1"}}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Fire(context.Background(), EventPostToolUse, Context{ToolName: "bash"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Blocked {
		t.Fatal("exit 1 must not block")
	}
}

func TestEngineFireTimeoutDoesNotBlock(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	err := e.Register(EventPreToolUse, Definition{
		Commands: []string{"sleep 30"},
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "bash"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Blocked {
		t.Fatal("timeout must not block")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("hook was not killed at its timeout, took %s", elapsed)
	}
}

func TestEngineFireMatcherFilters(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	err := e.Register(EventPreToolUse, Definition{
		Matcher:  "write_file",
		Commands: []string{"exit 2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "read_file"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Blocked {
		t.Fatal("matcher must filter out non-matching tools")
	}

	out, err = e.Fire(context.Background(), EventPreToolUse, Context{ToolName: "write_file"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Blocked {
		t.Fatal("matching tool must reach the hook")
	}
}

func TestEngineFirePayloadOnStdin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	capture := filepath.Join(dir, "payload.json")

	e := newTestEngine(t)
	err := e.Register(EventPreToolUse, Definition{
		Commands: []string{"cat > " + capture},
	})
	if err != nil {
		t.Fatal(err)
	}

	input := json.RawMessage(`{"command":"ls"}`)
	_, err = e.Fire(context.Background(), EventPreToolUse, Context{
		SessionID: "sess-1",
		ToolName:  "bash",
		ToolInput: input,
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(capture)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Event     string          `json:"hook_event_name"`
		SessionID string          `json:"session_id"`
		ToolName  string          `json:"tool_name"`
		ToolInput json.RawMessage `json:"tool_input"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v\n%s", err, raw)
	}
	if payload.Event != string(EventPreToolUse) {
		t.Fatalf("unexpected event %q", payload.Event)
	}
	if payload.SessionID != "sess-1" {
		t.Fatalf("unexpected session_id %q", payload.SessionID)
	}
	if payload.ToolName != "bash" {
		t.Fatalf("unexpected tool_name %q", payload.ToolName)
	}
	if string(payload.ToolInput) != string(input) {
		t.Fatalf("unexpected tool_input %s", payload.ToolInput)
	}
}

func TestEngineRegisterRejectsUnknownEvent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if err := e.Register(Event("made_up"), Definition{Commands: []string{"exit 0"}}); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestEngineRegisterRejectsEmptyCommands(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if err := e.Register(EventPreToolUse, Definition{}); err == nil {
		t.Fatal("expected error for definition without commands")
	}
	err := e.Register(EventPreToolUse, Definition{Commands: []string{"  "}})
	if err == nil || !strings.Contains(err.Error(), "empty command") {
		t.Fatalf("expected empty command error, got %v", err)
	}
}

func TestEngineRegisterRejectsBadMatcher(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	err := e.Register(EventPreToolUse, Definition{
		Matcher:  "bash([)",
		Commands: []string{"exit 0"},
	})
	if err == nil {
		t.Fatal("expected error for malformed matcher")
	}
}

func TestEventValid(t *testing.T) {
	t.Parallel()

	for _, ev := range []Event{
		EventPreToolUse, EventPostToolUse, EventPostToolUseFailed,
		EventPermissionRequest, EventUserPromptSubmit, EventSessionStart,
		EventSessionEnd, EventNotification, EventStop, EventSubagentStop,
		EventPreCompact,
	} {
		if !ev.Valid() {
			t.Fatalf("%s should be valid", ev)
		}
	}
	if Event("bogus").Valid() {
		t.Fatal("bogus event should be invalid")
	}
}
