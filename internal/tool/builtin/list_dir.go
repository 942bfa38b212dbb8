package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// ListDir lists a directory under the working root.
type ListDir struct {
	engine *security.Engine
}

type listDirParams struct {
	Path string `json:"path,omitempty"`
}

func (l *ListDir) Name() string { return "list_dir" }

func (l *ListDir) Description() string {
	return "Lists the entries of a directory under the working root. Directories carry a trailing slash."
}

func (l *ListDir) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory path relative to the working root, default is the root itself"}
		}
	}`)
}

func (l *ListDir) Classification() tool.Classification { return tool.ClassReadOnly }

func (l *ListDir) Execute(_ context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params listDirParams
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("list_dir: bad arguments: %w", err)
		}
	}
	if params.Path == "" {
		params.Path = "."
	}

	resolved, err := l.engine.CheckPath(env.Root, params.Path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list_dir: read %s: %w", params.Path, err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
