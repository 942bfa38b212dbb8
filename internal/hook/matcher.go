package hook

import (
	"fmt"
	"path"
	"strings"
)

// Matcher selects tool invocations for a hook. Syntax:
//
//	""            match any tool
//	"*"           match any tool
//	"bash"        literal tool name
//	"read_file|write_file"  pipe-separated alternatives
//	"bash(git *)" tool name plus glob over the primary argument
//
// Alternatives may mix plain and argument-qualified forms.
type Matcher struct {
	raw  string
	alts []alternative
}

type alternative struct {
	tool string
	glob string // empty means any argument
}

// ParseMatcher compiles a matcher expression. Malformed expressions are
// configuration errors, not silently-ignored rules.
func ParseMatcher(expr string) (Matcher, error) {
	expr = strings.TrimSpace(expr)
	m := Matcher{raw: expr}
	if expr == "" || expr == "*" {
		return m, nil
	}

	for _, part := range strings.Split(expr, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Matcher{}, fmt.Errorf("hook matcher %q: empty alternative", expr)
		}

		open := strings.IndexRune(part, '(')
		if open < 0 {
			m.alts = append(m.alts, alternative{tool: part})
			continue
		}
		if !strings.HasSuffix(part, ")") {
			return Matcher{}, fmt.Errorf("hook matcher %q: unclosed argument qualifier", expr)
		}
		tool := strings.TrimSpace(part[:open])
		glob := part[open+1 : len(part)-1]
		if tool == "" {
			return Matcher{}, fmt.Errorf("hook matcher %q: argument qualifier without tool name", expr)
		}
		if _, err := path.Match(glob, ""); err != nil {
			return Matcher{}, fmt.Errorf("hook matcher %q: bad glob %q: %v", expr, glob, err)
		}
		m.alts = append(m.alts, alternative{tool: tool, glob: glob})
	}
	return m, nil
}

// Match reports whether the matcher selects the given tool invocation.
func (m Matcher) Match(toolName, primaryArg string) bool {
	if len(m.alts) == 0 {
		return true
	}
	for _, alt := range m.alts {
		if alt.tool != toolName {
			continue
		}
		if alt.glob == "" {
			return true
		}
		if ok, err := path.Match(alt.glob, primaryArg); err == nil && ok {
			return true
		}
	}
	return false
}

// String returns the original matcher expression.
func (m Matcher) String() string {
	return m.raw
}
