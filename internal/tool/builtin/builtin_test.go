//go:build unix

package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postrv/patina/internal/security"
	"github.com/postrv/patina/internal/tool"
)

func testEnv(t *testing.T) (*security.Engine, tool.ExecutionEnv) {
	t.Helper()
	engine, err := security.NewEngine(security.DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	return engine, tool.ExecutionEnv{Root: t.TempDir()}
}

func mustWrite(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	engine, _ := testEnv(t)
	registry := tool.NewRegistry()
	if err := RegisterAll(registry, engine); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"read_file", "write_file", "edit_file", "list_dir", "search", "bash"} {
		if _, err := registry.Get(name); err != nil {
			t.Fatalf("%s not registered: %v", name, err)
		}
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.txt", "first\nsecond\nthird\n")
	r := &ReadFile{engine: engine}

	out, err := r.Execute(context.Background(), args(t, map[string]string{"path": "a.txt"}), env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1\tfirst") || !strings.Contains(out, "3\tthird") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestReadFileRange(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.txt", "one\ntwo\nthree\nfour\n")
	r := &ReadFile{engine: engine}

	out, err := r.Execute(context.Background(), args(t, map[string]any{
		"path": "a.txt", "start_line": 2, "num_lines": 2,
	}), env)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "one") || strings.Contains(out, "four") {
		t.Fatalf("range not applied:\n%s", out)
	}
	if !strings.Contains(out, "two") || !strings.Contains(out, "three") {
		t.Fatalf("range missing lines:\n%s", out)
	}
}

func TestReadFileRejectsEscape(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	r := &ReadFile{engine: engine}

	for _, path := range []string{"../../etc/passwd", "/etc/passwd"} {
		_, err := r.Execute(context.Background(), args(t, map[string]string{"path": path}), env)
		if !errors.Is(err, security.ErrViolation) {
			t.Fatalf("path %q: got %v, want violation", path, err)
		}
	}
}

func TestReadFileRejectsSymlink(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "real.txt", "data")
	if err := os.Symlink(filepath.Join(env.Root, "real.txt"), filepath.Join(env.Root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	r := &ReadFile{engine: engine}

	_, err := r.Execute(context.Background(), args(t, map[string]string{"path": "link.txt"}), env)
	if !errors.Is(err, security.ErrViolation) {
		t.Fatalf("got %v, want violation", err)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	w := &WriteFile{engine: engine}

	out, err := w.Execute(context.Background(), args(t, map[string]string{
		"path": "nested/deep/file.txt", "content": "hello",
	}), env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "5 bytes") {
		t.Fatalf("unexpected output %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(env.Root, "nested/deep/file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "hello" {
		t.Fatalf("got %q", raw)
	}
}

func TestWriteFileRejectsSymlinkTarget(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "real.txt", "original")
	if err := os.Symlink(filepath.Join(env.Root, "real.txt"), filepath.Join(env.Root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	w := &WriteFile{engine: engine}

	_, err := w.Execute(context.Background(), args(t, map[string]string{
		"path": "link.txt", "content": "clobbered",
	}), env)
	if !errors.Is(err, security.ErrViolation) {
		t.Fatalf("got %v, want violation", err)
	}

	raw, err := os.ReadFile(filepath.Join(env.Root, "real.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "original" {
		t.Fatal("write through symlink must not happen")
	}
}

func TestEditFile(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "main.go", "package main\n\nfunc main() {}\n")
	e := &EditFile{engine: engine}

	_, err := e.Execute(context.Background(), args(t, map[string]string{
		"path": "main.go", "old_string": "func main() {}", "new_string": "func main() { run() }",
	}), env)
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(filepath.Join(env.Root, "main.go"))
	if !strings.Contains(string(raw), "run()") {
		t.Fatalf("edit not applied:\n%s", raw)
	}
}

func TestEditFileAmbiguousMatch(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.txt", "x\nx\n")
	e := &EditFile{engine: engine}

	_, err := e.Execute(context.Background(), args(t, map[string]string{
		"path": "a.txt", "old_string": "x", "new_string": "y",
	}), env)
	if err == nil || !strings.Contains(err.Error(), "2 times") {
		t.Fatalf("got %v, want ambiguity error", err)
	}

	out, err := e.Execute(context.Background(), args(t, map[string]any{
		"path": "a.txt", "old_string": "x", "new_string": "y", "replace_all": true,
	}), env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 occurrence") {
		t.Fatalf("got %q", out)
	}
}

func TestEditFileMissingString(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.txt", "content\n")
	e := &EditFile{engine: engine}

	_, err := e.Execute(context.Background(), args(t, map[string]string{
		"path": "a.txt", "old_string": "absent", "new_string": "y",
	}), env)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("got %v", err)
	}
}

func TestListDir(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "b.txt", "")
	mustWrite(t, env.Root, "sub/c.txt", "")
	l := &ListDir{engine: engine}

	out, err := l.Execute(context.Background(), nil, env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "b.txt") || !strings.Contains(out, "sub/") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.go", "package a\nfunc Hello() {}\n")
	mustWrite(t, env.Root, "b.txt", "hello text\n")
	s := &Search{engine: engine}

	out, err := s.Execute(context.Background(), args(t, map[string]string{
		"pattern": "func Hello", "glob": "*.go",
	}), env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a.go:2") {
		t.Fatalf("unexpected result:\n%s", out)
	}
	if strings.Contains(out, "b.txt") {
		t.Fatal("glob filter ignored")
	}
}

func TestSearchNoMatches(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	mustWrite(t, env.Root, "a.txt", "nothing here\n")
	s := &Search{engine: engine}

	out, err := s.Execute(context.Background(), args(t, map[string]string{"pattern": "zzz"}), env)
	if err != nil {
		t.Fatal(err)
	}
	if out != "no matches" {
		t.Fatalf("got %q", out)
	}
}

func TestSearchBadPattern(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	s := &Search{engine: engine}

	if _, err := s.Execute(context.Background(), args(t, map[string]string{"pattern": "["}), env); err == nil {
		t.Fatal("expected error for bad pattern")
	}
}

func TestBash(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	b := &Bash{engine: engine}

	out, err := b.Execute(context.Background(), args(t, map[string]string{"command": "echo hello"}), env)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestBashRunsInRoot(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	b := &Bash{engine: engine}

	out, err := b.Execute(context.Background(), args(t, map[string]string{"command": "pwd"}), env)
	if err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(out))
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(env.Root)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("ran in %q, want %q", got, want)
	}
}

func TestBashRejectsDangerous(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	b := &Bash{engine: engine}

	_, err := b.Execute(context.Background(), args(t, map[string]string{"command": "rm -rf /"}), env)
	if !errors.Is(err, security.ErrViolation) {
		t.Fatalf("got %v, want violation", err)
	}
}

func TestBashExitCodeSurfaced(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	b := &Bash{engine: engine}

	_, err := b.Execute(context.Background(), args(t, map[string]string{"command": "echo boom; exit 3"}), env)
	if err == nil || !strings.Contains(err.Error(), "exit 3") {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("output missing from error: %v", err)
	}
}

func TestBashDeadlineKillsProcessTree(t *testing.T) {
	t.Parallel()

	engine, env := testEnv(t)
	b := &Bash{engine: engine}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Execute(ctx, args(t, map[string]string{"command": "sleep 30 & sleep 30"}), env)
	if err == nil {
		t.Fatal("expected kill error")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("process not killed at deadline, took %s", elapsed)
	}
}
