package catalog

import (
	"caseledger/pkg/domain"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const yamlCatalog = `
testCases:
  - id: TC001
    title: Login success
    preconditions: user alice exists
    steps:
      - open /login
      - enter alice/secret
      - submit
    testData:
      username: alice
      attempts: 1
    expectedResult: redirect to dashboard
  - id: TC002
    title: Logout
    steps: [click logout]
    testData: none
    expectedResult: login page shown
`

const jsonCatalog = `[
  {"id": "TC010", "title": "Search", "steps": ["type query"], "testData": "query=go", "expectedResult": "results"}
]`

func TestParseYAMLDocument(t *testing.T) {
	got, err := Parse([]byte(yamlCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []domain.TestCase{
		{
			ID:             "TC001",
			Title:          "Login success",
			Preconditions:  "user alice exists",
			Steps:          []string{"open /login", "enter alice/secret", "submit"},
			TestData:       domain.TestData{Values: map[string]string{"username": "alice", "attempts": "1"}},
			ExpectedResult: "redirect to dashboard",
		},
		{
			ID:             "TC002",
			Title:          "Logout",
			Steps:          []string{"click logout"},
			TestData:       domain.TestData{Text: "none"},
			ExpectedResult: "login page shown",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestParseForms(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		ids     []string
		wantErr string
	}{
		{name: "json list", input: jsonCatalog, ids: []string{"TC010"}},
		{name: "yaml list", input: "- id: A\n  title: a\n- id: B\n  title: b\n", ids: []string{"A", "B"}},
		{name: "json document", input: `{"testCases":[{"id":"X","title":"x"}]}`, ids: []string{"X"}},
		{name: "empty", input: "  \n", ids: nil},
		{name: "missing list", input: "title: lonely\n", wantErr: "no testCases"},
		{name: "bad status", input: `[{"id":"S","status":"Maybe"}]`, wantErr: "invalid status"},
		{name: "not yaml", input: "a: [\n", wantErr: "yaml"},
		{name: "non-string key", input: "testCases:\n  - {1: x}\n", wantErr: "only string keys"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.input))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			var ids []string
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if diff := cmp.Diff(tc.ids, ids); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b-auth.yaml":   yamlCatalog,
		"a-search.json": jsonCatalog,
		"notes.txt":     "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sources, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sources) != 2 || filepath.Base(sources[0].Path) != "a-search.json" || filepath.Base(sources[1].Path) != "b-auth.yaml" {
		t.Fatalf("unexpected sources %+v", sources)
	}
	if len(sources[1].TestCases) != 2 {
		t.Fatalf("expected 2 cases from yaml catalog, got %d", len(sources[1].TestCases))
	}

	single, err := Load(filepath.Join(dir, "a-search.json"))
	if err != nil || len(single) != 1 || single[0].TestCases[0].ID != "TC010" {
		t.Fatalf("single file load: %+v %v", single, err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing path")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("title: no list\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), `"bad.yaml"`) {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}
