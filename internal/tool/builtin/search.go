package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// maxSearchMatches caps the result list so a broad pattern cannot
// produce an unbounded payload.
const maxSearchMatches = 200

// Search greps file contents under the working root.
type Search struct {
	engine *security.Engine
}

type searchParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Glob    string `json:"glob,omitempty"`
}

func (s *Search) Name() string { return "search" }

func (s *Search) Description() string {
	return "Searches file contents under the working root with a regular expression. " +
		"Optional path narrows the start directory, optional glob filters file names."
}

func (s *Search) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Regular expression to match line by line"},
			"path": {"type": "string", "description": "Directory to search, default is the working root"},
			"glob": {"type": "string", "description": "File name glob filter, e.g. *.go"}
		},
		"required": ["pattern"]
	}`)
}

func (s *Search) Classification() tool.Classification { return tool.ClassReadOnly }

func (s *Search) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (string, error) {
	var params searchParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("search: bad arguments: %w", err)
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("search: pattern is required")
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return "", fmt.Errorf("search: bad pattern: %w", err)
	}
	if params.Glob != "" {
		if _, err := filepath.Match(params.Glob, ""); err != nil {
			return "", fmt.Errorf("search: bad glob %q: %w", params.Glob, err)
		}
	}

	start := params.Path
	if start == "" {
		start = "."
	}
	resolved, err := s.engine.CheckPath(env.Root, start)
	if err != nil {
		return "", err
	}

	var (
		sb      strings.Builder
		matches int
	)
	walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinked files are skipped, the walk never follows them.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if params.Glob != "" {
			if ok, _ := filepath.Match(params.Glob, d.Name()); !ok {
				return nil
			}
		}
		if matches >= maxSearchMatches {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			rel = path
		}
		n, err := s.searchFile(path, rel, re, &sb, maxSearchMatches-matches)
		if err != nil {
			return nil // unreadable or oversized, skip
		}
		matches += n
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("search: %w", walkErr)
	}

	if matches == 0 {
		return "no matches", nil
	}
	out := sb.String()
	if matches >= maxSearchMatches {
		out += fmt.Sprintf("(truncated at %d matches)\n", maxSearchMatches)
	}
	return out, nil
}

func (s *Search) searchFile(path, rel string, re *regexp.Regexp, sb *strings.Builder, budget int) (int, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxFileBytes {
		return 0, fmt.Errorf("search: skip %s", rel)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var (
		lineNum int
		found   int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFileBytes)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		fmt.Fprintf(sb, "%s:%d: %s\n", rel, lineNum, line)
		found++
		if found >= budget {
			break
		}
	}
	return found, nil
}
