// Package pipeline runs tool calls through the gate sequence: policy
// validation, pre-execution hooks, permission resolution, scheduling,
// execution, post-execution hooks.
//
// Gates are ordered so the security engine is the final authority: a
// policy rejection can never be overridden by a hook or a permission
// grant. Transitions are strictly forward; a rejection at any gate
// produces the call's terminal result immediately and later gates never
// see it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/postrv/patina/internal/capability"
	"github.com/postrv/patina/internal/hook"
	"github.com/postrv/patina/internal/metrics"
	"github.com/postrv/patina/internal/permission"
	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

const defaultConcurrency = 8

// gate names for rejection metrics and audit detail.
const (
	gateSecurity   = "security"
	gateHook       = "hook"
	gatePermission = "permission"
)

// Config groups the pipeline's dependencies.
type Config struct {
	// Engine validates commands and paths. Required.
	Engine *security.Engine

	// Registry resolves local tool names. Required.
	Registry *tool.Registry

	// Classifier labels calls for scheduling. Required.
	Classifier *tool.Classifier

	// Hooks fires lifecycle events. Nil means no hooks.
	Hooks *hook.Engine

	// Permissions resolves approval state. Nil means every call that
	// reaches the permission gate is cancelled as unapproved.
	Permissions *permission.Manager

	// Router dispatches remote calls. Nil means remote names fail.
	Router *capability.Router

	// Audit, if non-nil, receives gate and execution events.
	Audit *security.AuditLogger

	// Metrics records counters. Nil records nothing.
	Metrics *metrics.Metrics

	// Tracer emits one span per call. Nil means no tracing.
	Tracer trace.Tracer

	// Logger receives pipeline activity. Nil discards.
	Logger *slog.Logger

	// SessionID tags hook contexts and audit events.
	SessionID string

	// Root is the working root for filesystem tools.
	Root string

	// Concurrency bounds the read-only fan-out. Zero means 8.
	Concurrency int

	// CallTimeout is the hard deadline per execution. Zero uses the
	// policy's command timeout.
	CallTimeout time.Duration
}

// Pipeline executes batches of tool calls.
type Pipeline struct {
	cfg     Config
	env     tool.ExecutionEnv
	tracer  trace.Tracer
	logger  *slog.Logger
	timeout time.Duration
}

// New validates the config and builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Engine == nil {
		return nil, errors.New("pipeline: security engine is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("pipeline: tool registry is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = cfg.Engine.CommandTimeout()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("patina")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		cfg:     cfg,
		env:     tool.ExecutionEnv{Root: cfg.Root},
		tracer:  tracer,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// plan carries a call through the gates with its batch position and
// classification, which is fixed here and never recomputed.
type plan struct {
	index int
	call  tool.Call
	class tool.Classification
	arg   string // salient argument for hook matchers
}

// Run gates every call in order, then schedules the survivors. The
// returned results match the batch order position for position,
// regardless of completion order.
func (p *Pipeline) Run(ctx context.Context, batch []tool.Call) []tool.Result {
	results := make([]tool.Result, len(batch))
	var approved []plan

	for i, call := range batch {
		pl := plan{
			index: i,
			call:  call,
			class: p.cfg.Classifier.Classify(call.Name),
			arg:   salientArg(call.Input),
		}
		if res, rejected := p.gate(ctx, pl); rejected {
			results[i] = res
			continue
		}
		approved = append(approved, pl)
	}

	p.schedule(ctx, approved, results)
	return results
}

// gate runs a call through validation, the pre-execution hook, and
// permission resolution. rejected=true means res is the terminal result.
func (p *Pipeline) gate(ctx context.Context, pl plan) (res tool.Result, rejected bool) {
	if err := p.validate(pl.call); err != nil {
		p.cfg.Metrics.GateRejected(gateSecurity)
		p.audit(security.EventViolation, pl.call, err.Error())
		p.logger.Warn("pipeline: call rejected by policy",
			"call_id", pl.call.ID,
			"tool", pl.call.Name,
			"error", err,
		)
		return tool.Errorf(pl.call, "%v", err), true
	}

	if p.cfg.Hooks != nil {
		out, err := p.cfg.Hooks.Fire(ctx, hook.EventPreToolUse, hook.Context{
			SessionID:  p.cfg.SessionID,
			ToolName:   pl.call.Name,
			ToolInput:  pl.call.Input,
			PrimaryArg: pl.arg,
		})
		if err != nil {
			return tool.Errorf(pl.call, "hook failure: %v", err), true
		}
		if out.Blocked {
			p.cfg.Metrics.GateRejected(gateHook)
			p.cfg.Metrics.HookBlocked()
			p.audit(security.EventHookBlock, pl.call, out.Reason)
			return tool.Cancelled(pl.call, out.Reason), true
		}
	}

	decision := permission.DecisionNeedsPrompt
	if p.cfg.Permissions != nil {
		var err error
		decision, err = p.cfg.Permissions.Resolve(ctx, pl.call, pl.class)
		if err != nil {
			return tool.Errorf(pl.call, "permission resolution failed: %v", err), true
		}
	}
	switch decision {
	case permission.DecisionAllowOnce, permission.DecisionAllowAlways:
		return tool.Result{}, false
	case permission.DecisionDeny:
		p.cfg.Metrics.GateRejected(gatePermission)
		p.audit(security.EventPermission, pl.call, "denied")
		return tool.Cancelled(pl.call, "permission denied"), true
	default:
		p.cfg.Metrics.GateRejected(gatePermission)
		p.audit(security.EventPermission, pl.call, "unapproved")
		return tool.Cancelled(pl.call, "approval required"), true
	}
}

// validate applies the static policy checks: payload limits, command
// patterns for shell-shaped input, path containment for path-shaped
// input. Filesystem tools re-validate immediately before each operation;
// this gate exists so disallowed calls never reach a hook or a prompt.
func (p *Pipeline) validate(call tool.Call) error {
	if call.Name == "" {
		return fmt.Errorf("%w: empty tool name", security.ErrValidation)
	}
	if err := p.cfg.Engine.CheckPayload(call.Input); err != nil {
		return err
	}

	var args map[string]any
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return fmt.Errorf("%w: input is not a JSON object: %v", security.ErrValidation, err)
		}
	}

	if cmd, ok := args["command"].(string); ok {
		if err := p.cfg.Engine.CheckCommand(cmd); err != nil {
			return err
		}
	}
	if _, remote := capability.IsRemote(call.Name); !remote {
		if path, ok := args["path"].(string); ok {
			if _, err := p.cfg.Engine.CheckPath(p.cfg.Root, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute runs one approved call under its hard deadline, then fires the
// post-execution hook. The post hook completes before the result is
// considered terminal.
func (p *Pipeline) execute(ctx context.Context, pl plan) tool.Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.call",
		trace.WithAttributes(
			attribute.String("tool.name", pl.call.Name),
			attribute.String("tool.call_id", pl.call.ID),
			attribute.String("tool.classification", string(pl.class)),
		),
	)
	defer span.End()

	p.audit(security.EventToolCall, pl.call, "")

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	output, err := p.dispatch(callCtx, pl.call)
	elapsed := time.Since(start)
	timedOut := callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	var result tool.Result
	switch {
	case timedOut:
		result = tool.Errorf(pl.call, "timeout: execution exceeded %s", p.timeout)
		p.cfg.Metrics.TimedOut()
		p.audit(security.EventTimeout, pl.call, result.Reason)
	case err != nil:
		result = tool.Errorf(pl.call, "%v", err)
	default:
		result = tool.Success(pl.call, output)
	}

	span.SetAttributes(attribute.String("tool.status", string(result.Status)))
	p.cfg.Metrics.ObserveCall(pl.call.Name, string(result.Status), elapsed.Seconds())
	p.audit(security.EventToolResult, pl.call, string(result.Status))

	return p.postHook(ctx, pl, result)
}

// dispatch resolves the call to its backend. Remote names go to the
// capability router, everything else to the local registry.
func (p *Pipeline) dispatch(ctx context.Context, call tool.Call) (string, error) {
	if serverName, remote := capability.IsRemote(call.Name); remote {
		if p.cfg.Router == nil {
			return "", fmt.Errorf("no capability router configured for %s", call.Name)
		}
		output, err := p.cfg.Router.Dispatch(ctx, call)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.cfg.Metrics.RemoteCall(serverName, outcome)
		return output, err
	}

	impl, err := p.cfg.Registry.Get(call.Name)
	if err != nil {
		return "", err
	}
	return impl.Execute(ctx, call.Input, p.env)
}

// postHook fires the post-execution event matching the result. A block
// from a post hook turns the result into a cancellation carrying the
// hook's reason; the execution side effects have already happened and
// are not undone.
func (p *Pipeline) postHook(ctx context.Context, pl plan, result tool.Result) tool.Result {
	if p.cfg.Hooks == nil {
		return result
	}

	event := hook.EventPostToolUse
	if result.Status != tool.StatusSuccess {
		event = hook.EventPostToolUseFailed
	}

	outputText := result.Output
	if result.Status != tool.StatusSuccess {
		outputText = result.Reason
	}
	out, err := p.cfg.Hooks.Fire(ctx, event, hook.Context{
		SessionID:  p.cfg.SessionID,
		ToolName:   pl.call.Name,
		ToolInput:  pl.call.Input,
		ToolOutput: outputText,
		PrimaryArg: pl.arg,
	})
	if err != nil {
		p.logger.Warn("pipeline: post hook failed",
			"call_id", pl.call.ID,
			"error", err,
		)
		return result
	}
	if out.Blocked {
		p.cfg.Metrics.HookBlocked()
		p.audit(security.EventHookBlock, pl.call, out.Reason)
		return tool.Cancelled(pl.call, out.Reason)
	}
	return result
}

func (p *Pipeline) audit(eventType security.EventType, call tool.Call, detail string) {
	if p.cfg.Audit == nil {
		return
	}
	p.cfg.Audit.Log(security.AuditEvent{
		Type:      eventType,
		SessionID: p.cfg.SessionID,
		CallID:    call.ID,
		ToolName:  call.Name,
		Detail:    security.TruncateDetail(detail),
	})
}

// salientArg extracts the argument hook matchers glob against: the
// command for shell-shaped input, the path for path-shaped input.
func salientArg(input json.RawMessage) string {
	var args map[string]any
	if len(input) == 0 || json.Unmarshal(input, &args) != nil {
		return ""
	}
	if cmd, ok := args["command"].(string); ok {
		return cmd
	}
	if path, ok := args["path"].(string); ok {
		return path
	}
	return ""
}
