package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LaunchSpec describes a capability server process to be spawned. It passes
// through CheckLaunch before the process is ever created.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     map[string]string
}

// launchRules is the additional rule set applied to server launch commands,
// beyond the session blocklist. These bind to the command's base name, so
// an absolute path does not evade them.
type launchRules struct {
	// alwaysBlocked commands are rejected unconditionally.
	alwaysBlocked map[string]struct{}

	// interpreters are generic script runners, accepted only with an
	// absolute path so PATH cannot be used to swap the binary.
	interpreters map[string]struct{}
}

func defaultLaunchRules() launchRules {
	return launchRules{
		alwaysBlocked: setOf(
			"rm", "dd", "mkfs", "fdisk", "parted",
			"sudo", "doas", "pkexec", "su",
			"chmod", "chown", "mount",
			"shutdown", "reboot", "halt", "poweroff",
			"eval", "exec",
		),
		interpreters: setOf(
			"sh", "bash", "zsh", "dash", "ksh",
			"python", "python2", "python3",
			"node", "nodejs", "deno", "bun",
			"ruby", "perl", "php",
		),
	}
}

// launchInjectionMarkers are shell metacharacter sequences scanned for in
// the arguments of non-interpreter commands. An interpreter legitimately
// receives script text; anything else has no business carrying these.
var launchInjectionMarkers = []string{
	";", "|", "&", "`", "$(", ">", "<", "\n",
}

// CheckLaunch validates a capability server launch specification. Commands
// on the always-blocked list are rejected even given an absolute path and no
// metacharacters; interpreters require an absolute path; other commands have
// their arguments scanned for shell-injection patterns.
func (e *Engine) CheckLaunch(spec LaunchSpec) error {
	command := strings.TrimSpace(spec.Command)
	if command == "" {
		return fmt.Errorf("%w: empty launch command", ErrValidation)
	}

	base := filepath.Base(command)

	if _, blocked := e.launch.alwaysBlocked[base]; blocked {
		return fmt.Errorf("%w: launch command %q is always blocked", ErrViolation, base)
	}

	if _, isInterp := e.launch.interpreters[base]; isInterp {
		if !filepath.IsAbs(command) {
			return fmt.Errorf("%w: interpreter %q requires an absolute path", ErrViolation, base)
		}
		return nil
	}

	for _, arg := range spec.Args {
		for _, marker := range launchInjectionMarkers {
			if strings.Contains(arg, marker) {
				return fmt.Errorf("%w: launch argument %q contains shell metacharacters", ErrViolation, arg)
			}
		}
	}
	return nil
}

func setOf(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
