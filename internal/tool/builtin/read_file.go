package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// ReadFile returns a file's contents with line numbers.
type ReadFile struct {
	engine *security.Engine
}

type readFileParams struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	NumLines  int    `json:"num_lines,omitempty"`
}

func (r *ReadFile) Name() string { return "read_file" }

func (r *ReadFile) Description() string {
	return "Reads a file under the working root and returns its contents with line numbers. " +
		"Optional start_line and num_lines select a range."
}

func (r *ReadFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path relative to the working root"},
			"start_line": {"type": "integer", "description": "First line to return, 1-based"},
			"num_lines": {"type": "integer", "description": "Number of lines to return"}
		},
		"required": ["path"]
	}`)
}

func (r *ReadFile) Classification() tool.Classification { return tool.ClassReadOnly }

func (r *ReadFile) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params readFileParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("read_file: bad arguments: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("read_file: path is required")
	}

	resolved, err := r.engine.CheckPath(env.Root, params.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("read_file: %s does not exist", params.Path)
		}
		return "", fmt.Errorf("read_file: stat %s: %w", params.Path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read_file: %s is a directory", params.Path)
	}
	if info.Size() > maxFileBytes {
		return "", fmt.Errorf("read_file: %s is %d bytes, limit is %d", params.Path, info.Size(), maxFileBytes)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("read_file: open %s: %w", params.Path, err)
	}
	defer func() { _ = f.Close() }()

	start := params.StartLine
	if start < 1 {
		start = 1
	}

	var (
		sb      strings.Builder
		lineNum int
		emitted int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFileBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		lineNum++
		if lineNum < start {
			continue
		}
		if params.NumLines > 0 && emitted >= params.NumLines {
			break
		}
		fmt.Fprintf(&sb, "%6d\t%s\n", lineNum, scanner.Text())
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read_file: read %s: %w", params.Path, err)
	}
	if emitted == 0 && lineNum == 0 {
		return "(empty file)", nil
	}
	return sb.String(), nil
}
