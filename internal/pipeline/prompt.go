package pipeline

import (
	"context"
	"fmt"

	"github.com/postrv/patina/internal/hook"
	"github.com/postrv/patina/internal/metrics"
	"github.com/postrv/patina/internal/permission"
)

// PromptWithHooks wraps a prompter so the permission request event fires
// before the user is asked. A hook that blocks the event denies the call
// for this invocation only: no rule is recorded, since the user never
// answered, and removing the hook restores normal prompting.
func PromptWithHooks(hooks *hook.Engine, sessionID string, m *metrics.Metrics, inner permission.Prompter) permission.Prompter {
	return permission.PrompterFunc(func(ctx context.Context, req permission.Request) (permission.Decision, error) {
		if hooks != nil {
			out, err := hooks.Fire(ctx, hook.EventPermissionRequest, hook.Context{
				SessionID:  sessionID,
				ToolName:   req.Call.Name,
				ToolInput:  req.Call.Input,
				PrimaryArg: salientArg(req.Call.Input),
			})
			if err != nil {
				return permission.DecisionDeny, err
			}
			if out.Blocked {
				return permission.DecisionDeny, fmt.Errorf("%w: %s", permission.ErrPromptBlocked, out.Reason)
			}
		}
		m.Prompted()
		return inner.Prompt(ctx, req)
	})
}
