// Package tool defines the tool call data model, the local tool interface,
// the read/write classifier, and the tool registry for patina. Tools are the
// primary security boundary: every action the model takes goes through a
// registered tool, and every call carries exactly one terminal result.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call is a single tool invocation proposed by the model. It is immutable
// once created; the pipeline consumes it and produces exactly one Result.
type Call struct {
	// ID is the caller-assigned identifier, echoed back on the Result.
	ID string

	// Name identifies the tool. Names containing the remote separator
	// ("server:tool") are routed to a capability server instead of the
	// local registry.
	Name string

	// Input is the raw JSON arguments for the tool.
	Input json.RawMessage
}

// Status tags a Result as one of the three terminal outcomes.
type Status string

// Terminal result statuses.
const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Result is the terminal outcome of a Call. Exactly one Result is produced
// per accepted Call, including cancelled ones, so callers never block.
type Result struct {
	// CallID echoes the ID of the originating Call.
	CallID string

	// Status is the terminal outcome tag.
	Status Status

	// Output is the tool's output text. Set only on StatusSuccess.
	Output string

	// Reason carries the error or cancellation reason for the other
	// two statuses. Never a stack trace.
	Reason string
}

// Success builds a successful Result for the given call.
func Success(call Call, output string) Result {
	return Result{CallID: call.ID, Status: StatusSuccess, Output: output}
}

// Errorf builds an error Result for the given call.
func Errorf(call Call, format string, args ...any) Result {
	return Result{CallID: call.ID, Status: StatusError, Reason: fmt.Sprintf(format, args...)}
}

// Cancelled builds a cancelled Result for the given call.
func Cancelled(call Call, reason string) Result {
	return Result{CallID: call.ID, Status: StatusCancelled, Reason: reason}
}

// ExecutionEnv provides the runtime environment for local tool execution.
// It intentionally does not expose secrets or os.Environ.
type ExecutionEnv struct {
	// Root is the working root for the current session. Filesystem tools
	// must not reach outside it.
	Root string
}

// Tool is the interface all local tools implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Classification returns the static side-effect label used by the
	// scheduler. It must be constant for the lifetime of the tool.
	Classification() Classification

	// Execute runs the tool with the given arguments and environment.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (string, error)
}
