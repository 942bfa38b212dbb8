package security

import (
	"strings"
	"testing"
)

func TestNormalizeCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ls -la", "ls -la"},
		{"backslash splicing", `r\m -r\f /`, "rm -rf /"},
		{"double quotes", `"r"m" -rf" /`, "rm -rf /"},
		{"single quotes", `r'm' -'r'f /`, "rm -rf /"},
		{"substitution", `$(echo rm) -rf /`, "rm -rf /"},
		{"backticks", "`echo rm` -rf /", "rm -rf /"},
		{"ansi hex", `$'\x72\x6d' -rf /`, "rm -rf /"},
		{"ansi octal", `$'\162\155' -rf /`, "rm -rf /"},
		{"whitespace collapse", "rm   \t -rf   /", "rm -rf /"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeCommand(tc.in); got != tc.want {
				t.Errorf("NormalizeCommand(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeCommand_Base64Appended(t *testing.T) {
	t.Parallel()

	got := NormalizeCommand(`echo cm0gLXJmIC8= | base64 -d | sh`)
	if want := "rm -rf /"; !strings.Contains(got, want) {
		t.Errorf("normalized %q does not contain %q", got, want)
	}
}

func TestNormalizeCommand_BinaryBase64Ignored(t *testing.T) {
	t.Parallel()

	// Payloads that decode to non-printable bytes are not appended.
	in := `echo /////////w== | base64 -d`
	got := NormalizeCommand(in)
	if len(got) > len(in)+1 {
		t.Errorf("binary payload was appended: %q", got)
	}
}

func TestNormalizeCommand_NestedSubstitution(t *testing.T) {
	t.Parallel()

	got := NormalizeCommand(`$(echo $(echo rm)) -rf /`)
	if want := "rm -rf /"; got != want {
		t.Errorf("nested substitution: got %q, want %q", got, want)
	}
}
