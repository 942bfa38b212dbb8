package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadBatchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	want := `[{"id":"c1","name":"read_file","input":{"path":"a.txt"}}]`
	if err := os.WriteFile(path, []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}

	raw, err := readBatch([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != want {
		t.Fatalf("got %q", raw)
	}
}

func TestReadBatchFromStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = orig })

	want := `[{"id":"c1","name":"list_dir","input":{}}]`
	if _, err := w.WriteString(want); err != nil {
		t.Fatal(err)
	}
	w.Close()

	raw, err := readBatch(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != want {
		t.Fatalf("got %q", raw)
	}

	// "-" selects stdin explicitly, same path.
	if _, err := readBatch([]string{"-"}); err != nil {
		t.Fatal(err)
	}
}
