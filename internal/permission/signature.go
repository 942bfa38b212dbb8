package permission

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Signature derives the normalized lookup key for a tool call. The key is
// the tool name plus the salient argument shape:
//
//   - shell calls key on the command's head token, so "git status" and
//     "git log" share the signature "bash:git"
//   - filesystem calls key on the cleaned path
//   - everything else keys on the bare tool name
//
// An unparsable input falls back to the bare tool name, which is the most
// conservative grouping: one grant covers one tool, never more.
func Signature(toolName string, input json.RawMessage) string {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return toolName
		}
	}

	if cmd, ok := args["command"].(string); ok {
		if head := headToken(cmd); head != "" {
			return toolName + ":" + head
		}
		return toolName
	}

	if p, ok := args["path"].(string); ok && p != "" {
		return toolName + ":" + filepath.Clean(p)
	}

	return toolName
}

func headToken(command string) string {
	fields := strings.Fields(command)
	for _, f := range fields {
		// Skip leading VAR=value assignments so "FOO=1 git push" keys
		// on git.
		if i := strings.IndexByte(f, '='); i > 0 && !strings.ContainsAny(f[:i], "/\\") {
			continue
		}
		return filepath.Base(f)
	}
	return ""
}
