package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("package q\n\n"+body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFile(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]string{}

	ok := writeGo(t, dir, "a.go", "const QA = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;`\n")
	if vs, err := lintFile(ok, seen); err != nil || len(vs) != 0 {
		t.Fatalf("clean file: %v %v", vs, err)
	}

	missing := writeGo(t, dir, "b.go", "const QB = `select 1;`\nconst Label = \"hello\"\n")
	vs, err := lintFile(missing, seen)
	if err != nil || len(vs) != 1 || vs[0].name != "QB" {
		t.Fatalf("missing marker: %+v %v", vs, err)
	}

	dup := writeGo(t, dir, "c.go", "const QC = `--sql 11111111-2222-4333-8444-555555555555\ndelete from t;`\n")
	vs, err = lintFile(dup, seen)
	if err != nil || len(vs) != 1 || !strings.Contains(vs[0].message, "a.go") {
		t.Fatalf("duplicate marker: %+v %v", vs, err)
	}
}
