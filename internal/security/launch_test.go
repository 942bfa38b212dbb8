package security

import (
	"errors"
	"testing"
)

func TestCheckLaunch_AlwaysBlocked(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t, DefaultPolicy())

	// Blocked even with an absolute path and no metacharacters.
	cases := []LaunchSpec{
		{Command: "/bin/rm", Args: []string{"-rf"}},
		{Command: "rm"},
		{Command: "/usr/bin/sudo", Args: []string{"true"}},
		{Command: "/sbin/shutdown"},
	}
	for _, spec := range cases {
		if err := engine.CheckLaunch(spec); !errors.Is(err, ErrViolation) {
			t.Errorf("CheckLaunch(%q) = %v, want ErrViolation", spec.Command, err)
		}
	}
}

func TestCheckLaunch_InterpreterRequiresAbsolutePath(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t, DefaultPolicy())

	if err := engine.CheckLaunch(LaunchSpec{Command: "python3", Args: []string{"server.py"}}); !errors.Is(err, ErrViolation) {
		t.Errorf("relative interpreter: got %v, want ErrViolation", err)
	}
	if err := engine.CheckLaunch(LaunchSpec{Command: "/usr/bin/python3", Args: []string{"server.py"}}); err != nil {
		t.Errorf("absolute interpreter rejected: %v", err)
	}
}

func TestCheckLaunch_ArgumentInjection(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t, DefaultPolicy())

	for _, args := range [][]string{
		{"--port", "8080; rm -rf /"},
		{"$(whoami)"},
		{"a", "b|c"},
		{"out\ntwo-lines"},
	} {
		spec := LaunchSpec{Command: "my-capability-server", Args: args}
		if err := engine.CheckLaunch(spec); !errors.Is(err, ErrViolation) {
			t.Errorf("CheckLaunch args %q = %v, want ErrViolation", args, err)
		}
	}

	clean := LaunchSpec{Command: "my-capability-server", Args: []string{"--port", "8080"}}
	if err := engine.CheckLaunch(clean); err != nil {
		t.Errorf("clean launch rejected: %v", err)
	}
}

func TestCheckLaunch_EmptyCommand(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t, DefaultPolicy())
	if err := engine.CheckLaunch(LaunchSpec{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty command: got %v, want ErrValidation", err)
	}
}
