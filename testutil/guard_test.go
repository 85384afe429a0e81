package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHasPathPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"example.com/mod/internal/infra", "example.com/mod/internal/infra", true},
		{"example.com/mod/internal/infra/blob", "example.com/mod/internal/infra", true},
		{"example.com/mod/internal/infrastructure", "example.com/mod/internal/infra", false},
		{"example.com/mod/pkg", "example.com/mod/internal", false},
	}
	for _, c := range cases {
		if got := HasPathPrefix(c.path, c.prefix); got != c.want {
			t.Errorf("HasPathPrefix(%q, %q) = %v, want %v", c.path, c.prefix, got, c.want)
		}
	}
}

func TestImportGraphCheck(t *testing.T) {
	g := ImportGraph{
		"mod/pkg/domain":           {"context", "mod/internal/core"},
		"mod/internal/core":        {"mod/internal/infra/db", "mod/pkg/domain"},
		"mod/internal/infra/db":    {"mod/pkg/domain"},
		"mod/internal/report":      {"mod/internal/infra/db", "mod/internal/infra/db"},
		"mod/internal/report/view": {"mod/internal/infra/db/rows"},
	}
	rules := []Rule{
		{Name: "domain", From: "mod/pkg/domain", Forbid: []string{"mod/internal"}},
		{Name: "infra", From: "mod", Forbid: []string{"mod/internal/infra"}, Except: []string{"mod/internal/core", "mod/internal/infra"}},
	}
	got := g.Check(rules...)
	want := []Violation{
		{Rule: "domain", Package: "mod/pkg/domain", Import: "mod/internal/core"},
		{Rule: "infra", Package: "mod/internal/report", Import: "mod/internal/infra/db"},
		{Rule: "infra", Package: "mod/internal/report/view", Import: "mod/internal/infra/db/rows"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
	if len(ImportGraph{"mod/a": {"fmt"}}.Check(rules...)) != 0 {
		t.Fatalf("unexpected violations for a clean graph")
	}
}

type recorder struct {
	errors []string
	fatal  string
}

func (r *recorder) Helper() {}
func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}
func (r *recorder) Fatalf(format string, args ...any) { r.fatal = fmt.Sprintf(format, args...) }

func TestReportListsEveryViolation(t *testing.T) {
	rec := &recorder{}
	report(rec, []Violation{{Rule: "r", Package: "a", Import: "b"}, {Rule: "r", Package: "c", Import: "d"}})
	if len(rec.errors) != 2 || rec.errors[0] != "r: a imports b" || rec.fatal != "found 2 forbidden imports" {
		t.Fatalf("unexpected report %+v", rec)
	}
	rec = &recorder{}
	report(rec, nil)
	if rec.fatal != "" || len(rec.errors) != 0 {
		t.Fatalf("clean report should not fail: %+v", rec)
	}
}

func TestDirectImports(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.go", "package tmp\n\nimport (\n\t\"fmt\"\n\t\"example.com/mod/internal/x\"\n)\n\nvar _ = fmt.Sprint\n")
	write("a_test.go", "package tmp\n\nimport \"example.com/mod/internal/y\"\n")
	write("notes.txt", "import \"nope\"")

	got, err := DirectImports(dir)
	if err != nil {
		t.Fatalf("DirectImports: %v", err)
	}
	want := map[string][]string{"a.go": {"fmt", "example.com/mod/internal/x"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("imports mismatch (-want +got):\n%s", diff)
	}

	AssertNoDirectImports(t, dir, "example.com/mod/pkg")
	if _, err := DirectImports(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
