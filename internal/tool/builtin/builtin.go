// Package builtin provides the local tool set: file read/write/edit,
// directory listing, content search, and shell execution.
//
// Filesystem tools validate their path against the security engine
// immediately before every operation, not once up front. Filesystem
// state can change between an early check and the operation, and the
// symlink rejection only holds if the check is adjacent to the use.
package builtin

import (
	"fmt"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

// maxFileBytes caps file reads and search scans.
const maxFileBytes = 1 << 20

// RegisterAll registers every builtin tool with the registry.
func RegisterAll(registry *tool.Registry, engine *security.Engine) error {
	tools := []tool.Tool{
		&ReadFile{engine: engine},
		&WriteFile{engine: engine},
		&EditFile{engine: engine},
		&ListDir{engine: engine},
		&Search{engine: engine},
		&Bash{engine: engine},
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("builtin: register %s: %w", t.Name(), err)
		}
	}
	return nil
}
