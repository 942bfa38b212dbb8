package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// EditFile replaces an exact string in an existing file.
type EditFile struct {
	engine *security.Engine
}

type editFileParams struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func (e *EditFile) Name() string { return "edit_file" }

func (e *EditFile) Description() string {
	return "Replaces an exact string in a file. old_string must appear exactly once " +
		"unless replace_all is set."
}

func (e *EditFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path relative to the working root"},
			"old_string": {"type": "string", "description": "Exact text to replace"},
			"new_string": {"type": "string", "description": "Replacement text"},
			"replace_all": {"type": "boolean", "description": "Replace every occurrence"}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

func (e *EditFile) Classification() tool.Classification { return tool.ClassMutating }

func (e *EditFile) Execute(_ context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params editFileParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("edit_file: bad arguments: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("edit_file: path is required")
	}
	if params.OldString == "" {
		return "", fmt.Errorf("edit_file: old_string is required")
	}
	if params.OldString == params.NewString {
		return "", fmt.Errorf("edit_file: old_string and new_string are identical")
	}

	resolved, err := e.engine.CheckPath(env.Root, params.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("edit_file: stat %s: %w", params.Path, err)
	}
	if info.Size() > maxFileBytes {
		return "", fmt.Errorf("edit_file: %s is %d bytes, limit is %d", params.Path, info.Size(), maxFileBytes)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("edit_file: read %s: %w", params.Path, err)
	}
	content := string(raw)

	count := strings.Count(content, params.OldString)
	switch {
	case count == 0:
		return "", fmt.Errorf("edit_file: old_string not found in %s", params.Path)
	case count > 1 && !params.ReplaceAll:
		return "", fmt.Errorf("edit_file: old_string appears %d times in %s, pass replace_all or disambiguate", count, params.Path)
	}

	replacements := 1
	if params.ReplaceAll {
		replacements = count
	}
	content = strings.Replace(content, params.OldString, params.NewString, replacements)

	if err := os.WriteFile(resolved, []byte(content), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("edit_file: write %s: %w", params.Path, err)
	}
	return fmt.Sprintf("replaced %d occurrence(s) in %s", replacements, params.Path), nil
}
