package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// WriteFile creates or replaces a file under the working root.
type WriteFile struct {
	engine *security.Engine
}

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (w *WriteFile) Name() string { return "write_file" }

func (w *WriteFile) Description() string {
	return "Writes content to a file under the working root, creating parent directories as needed. " +
		"An existing file is replaced."
}

func (w *WriteFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path relative to the working root"},
			"content": {"type": "string", "description": "Full file content to write"}
		},
		"required": ["path", "content"]
	}`)
}

func (w *WriteFile) Classification() tool.Classification { return tool.ClassMutating }

func (w *WriteFile) Execute(_ context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params writeFileParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("write_file: bad arguments: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("write_file: path is required")
	}

	resolved, err := w.engine.CheckPath(env.Root, params.Path)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("write_file: create directory for %s: %w", params.Path, err)
		}
	}

	// The path was validated symlink-free a moment ago; O_NOFOLLOW
	// closes the remaining window on the final component.
	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|noFollowFlag, 0o644)
	if err != nil {
		return "", fmt.Errorf("write_file: open %s: %w", params.Path, err)
	}
	if _, err := f.WriteString(params.Content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write_file: write %s: %w", params.Path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write_file: close %s: %w", params.Path, err)
	}

	return fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path), nil
}
