// Package capability connects to external capability servers and routes
// remote tool calls to them.
//
// A capability server is an external process speaking JSON-RPC 2.0 over
// its standard streams, or a network endpoint speaking the same protocol
// over an event stream. Remote tools are addressed as "<server>:<tool>".
// Before a server process is launched its command passes the same
// security engine used for shell commands, with the stricter launch rule
// set.
package capability

import (
	"strings"

	"github.com/postrv/patina/internal/tool"
)

// ServerConfig describes one capability server. Exactly one of Command
// and URL must be set: Command launches a local process, URL connects to
// a remote event-stream endpoint.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Enabled bool              `yaml:"enabled"`
}

// RemoteTool is one entry of a server's tool catalog.
type RemoteTool struct {
	Server      string
	Name        string
	Description string
	InputSchema []byte
}

// FullName returns the routable "<server>:<tool>" name.
func (t RemoteTool) FullName() string {
	return t.Server + tool.RemoteSeparator + t.Name
}

// SplitName splits a routable tool name into server and tool parts.
// ok is false for local (unprefixed) names.
func SplitName(name string) (server, toolName string, ok bool) {
	server, toolName, ok = strings.Cut(name, tool.RemoteSeparator)
	if !ok || server == "" || toolName == "" {
		return "", "", false
	}
	return server, toolName, true
}

// IsRemote reports whether name routes to a capability server, and to
// which one.
func IsRemote(name string) (server string, ok bool) {
	server, _, ok = SplitName(name)
	return server, ok
}
