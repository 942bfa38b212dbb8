package tool

import "strings"

// Classification labels a tool's side effects for the scheduler.
type Classification string

// Classification values. Unknown is the conservative default: anything we
// cannot prove read-only is treated as unsafe to parallelize.
const (
	ClassReadOnly Classification = "read_only"
	ClassMutating Classification = "mutating"
	ClassUnknown  Classification = "unknown"
)

// RemoteSeparator splits a remote-routed tool name into server and tool.
const RemoteSeparator = ":"

// builtinClasses seeds the classifier with the built-in tool names.
// Raw shell execution is deliberately absent: bash is Unknown because its
// side effects depend entirely on the command text.
var builtinClasses = map[string]Classification{
	"read_file":  ClassReadOnly,
	"list_dir":   ClassReadOnly,
	"search":     ClassReadOnly,
	"write_file": ClassMutating,
	"edit_file":  ClassMutating,
}

// Classifier resolves tool names to classifications from a static table.
// The table is fixed at construction; a call's classification is decided
// once at pipeline entry and never recomputed afterwards.
type Classifier struct {
	classes map[string]Classification
}

// NewClassifier creates a classifier over the built-in table plus any
// extra registrations (extra entries win on collision).
func NewClassifier(extra map[string]Classification) *Classifier {
	classes := make(map[string]Classification, len(builtinClasses)+len(extra))
	for name, class := range builtinClasses {
		classes[name] = class
	}
	for name, class := range extra {
		classes[strings.TrimSpace(name)] = class
	}
	return &Classifier{classes: classes}
}

// Classify returns the classification for a tool name. Remote-routed names
// and anything not in the table are Unknown.
func (c *Classifier) Classify(name string) Classification {
	name = strings.TrimSpace(name)
	if strings.Contains(name, RemoteSeparator) {
		return ClassUnknown
	}
	if class, ok := c.classes[name]; ok {
		return class
	}
	return ClassUnknown
}
