package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// maxOutputBytes caps captured shell output.
const maxOutputBytes = 256 * 1024

// Bash runs a shell command inside the working root. The command text is
// re-checked against the security policy here even though the pipeline
// already validated it; the tool must hold on its own when driven
// directly.
type Bash struct {
	engine *security.Engine
}

type bashParams struct {
	Command string `json:"command"`
}

func (b *Bash) Name() string { return "bash" }

func (b *Bash) Description() string {
	return "Runs a shell command in the working root and returns its combined output. " +
		"Commands run under the policy timeout; the whole process tree is killed on expiry."
}

func (b *Bash) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute"}
		},
		"required": ["command"]
	}`)
}

// Classification is Unknown on purpose: the side effects of a shell
// command depend entirely on its text.
func (b *Bash) Classification() tool.Classification { return tool.ClassUnknown }

func (b *Bash) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params bashParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("bash: bad arguments: %w", err)
	}
	if strings.TrimSpace(params.Command) == "" {
		return "", fmt.Errorf("bash: command is required")
	}

	if err := b.engine.CheckCommand(params.Command); err != nil {
		return "", err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.engine.CommandTimeout())
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", params.Command)
	cmd.Dir = env.Root
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("bash: command killed: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("bash: exit %d: %s", exitErr.ExitCode(), truncateOutput(out.Bytes()))
		}
		return "", fmt.Errorf("bash: run: %w", err)
	}
	return truncateOutput(out.Bytes()), nil
}

func truncateOutput(b []byte) string {
	if len(b) <= maxOutputBytes {
		return string(b)
	}
	return string(b[:maxOutputBytes]) + "\n(output truncated)"
}
