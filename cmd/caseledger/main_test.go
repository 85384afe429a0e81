package main

import (
	"bytes"
	"caseledger/internal/blob"
	"caseledger/internal/config"
	"caseledger/internal/core"
	"caseledger/internal/report"
	"caseledger/pkg/domain"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type harness struct {
	t          *testing.T
	dir        string
	configPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := "storage:\n" +
		"  driver: file\n" +
		"  file_path: " + filepath.Join(dir, "cases.json") + "\n" +
		"blob:\n" +
		"  driver: fs\n" +
		"  fs_root: " + filepath.Join(dir, "artifacts") + "\n" +
		"log:\n" +
		"  level: warn\n"
	path := filepath.Join(dir, "caseledger.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &harness{t: t, dir: dir, configPath: path}
}

func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), append([]string{"-config", h.configPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	code, stdout, stderr := h.run(args...)
	if code != 0 {
		h.t.Fatalf("%v exited %d: %s", args, code, stderr)
	}
	return stdout
}

func TestRegistryWorkflow(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("create", "-id", "TC001", "-title", "Login success",
		"-step", "open /login", "-step", "submit", "-data", "username=alice", "-expected", "dashboard")
	if !strings.Contains(out, "TC001 Login success") || !strings.Contains(out, "status:        NotRun") {
		t.Fatalf("unexpected create output:\n%s", out)
	}
	h.mustRun("create", "-id", "TC002", "-title", "Logout", "-step", "click logout", "-expected", "login page")

	out = h.mustRun("record", "TC001", "-status", "pass", "-actual", "landed", "-by", "qa")
	if !strings.Contains(out, "status:        Pass") || !strings.Contains(out, "tested by:     qa") {
		t.Fatalf("unexpected record output:\n%s", out)
	}

	out = h.mustRun("-json", "get", "TC001")
	var got struct {
		TestCase domain.TestCase `json:"testCase"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode get: %v\n%s", err, out)
	}
	if got.TestCase.Status != domain.StatusPass || got.TestCase.DateExecuted == nil || got.TestCase.TestData.Values["username"] != "alice" {
		t.Fatalf("record did not persist: %+v", got.TestCase)
	}

	out = h.mustRun("list", "-status", "Pass")
	if !strings.Contains(out, "TC001") || strings.Contains(out, "TC002") {
		t.Fatalf("unexpected filtered list:\n%s", out)
	}
	out = h.mustRun("list", "-sort", "title", "-desc")
	if strings.Index(out, "TC001") < strings.Index(out, "TC002") {
		t.Fatalf("expected Logout before Login success:\n%s", out)
	}

	h.mustRun("update", "TC001", "-comments", "flaky on staging")
	out = h.mustRun("update", "TC001", "-reset")
	if !strings.Contains(out, "status:        NotRun") || !strings.Contains(out, "comments:      flaky on staging") {
		t.Fatalf("unexpected reset output:\n%s", out)
	}
	out = h.mustRun("history", "TC001")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Fatalf("expected header plus three revisions:\n%s", out)
	}

	out = h.mustRun("summary")
	if !strings.Contains(out, "NotRun:  2") || !strings.Contains(out, "total:   2") || !strings.Contains(out, "coverage: 0.0%") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	out = h.mustRun("archive", "TC002", "-reason", "feature removed")
	if !strings.HasPrefix(out, "archived TC002 at ") {
		t.Fatalf("unexpected archive output: %s", out)
	}
	out = h.mustRun("archived")
	if !strings.Contains(out, "TC002") || !strings.Contains(out, "feature removed") {
		t.Fatalf("unexpected archived listing:\n%s", out)
	}
	out = h.mustRun("list")
	if strings.Contains(out, "TC002") {
		t.Fatalf("archived record still listed:\n%s", out)
	}
	if code, _, stderr := h.run("update", "TC002", "-title", "again"); code != 1 || !strings.Contains(stderr, "archived") {
		t.Fatalf("archived update should fail: %d %s", code, stderr)
	}
}

func TestExitCodes(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "-id", "TC001", "-title", "Draft")

	cases := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"no command", nil, 2, "usage: caseledger"},
		{"unknown command", []string{"explode"}, 2, `unknown command "explode"`},
		{"missing title", []string{"create", "-id", "X"}, 2, "-title is required"},
		{"bad flag", []string{"list", "-colour"}, 2, "flag provided but not defined"},
		{"missing id", []string{"get"}, 2, "test case id is required"},
		{"missing tester", []string{"record", "TC001", "-status", "Pass"}, 2, "-status and -by are required"},
		{"bad status", []string{"record", "TC001", "-status", "Skipped", "-by", "qa"}, 2, "invalid status"},
		{"bad data", []string{"create", "-title", "x", "-data", "novalue"}, 2, "want key=value"},
		{"nothing to update", []string{"update", "TC001"}, 2, "nothing to update"},
		{"not found", []string{"get", "TC404"}, 1, "not found"},
		{"duplicate", []string{"create", "-id", "TC001", "-title", "again"}, 1, "duplicate"},
		{"no steps", []string{"record", "TC001", "-status", "Pass", "-by", "qa"}, 1, "no steps"},
		{"bad sort", []string{"list", "-sort", "color"}, 2, "unknown sort key"},
		{"import without path", []string{"import"}, 2, "catalog file or directory is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := h.run(tc.args...)
			if code != tc.code || !strings.Contains(stderr, tc.want) {
				t.Fatalf("exit %d (want %d), stderr %q should contain %q", code, tc.code, stderr, tc.want)
			}
		})
	}

	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-config", filepath.Join(h.dir, "missing.yaml"), "list"}, io.Discard, &stderr); code != 1 {
		t.Fatalf("missing config should exit 1, got %d", code)
	}
	if code := cli(context.Background(), []string{"-h"}, io.Discard, io.Discard); code != 0 {
		t.Fatalf("-h should exit 0, got %d", code)
	}
}

const catalogYAML = `
testCases:
  - id: TC010
    title: Search by keyword
    steps: [open search, type query]
    expectedResult: matching results
    testData: laptop
  - id: TC011
    title: Empty search
    steps: [submit empty form]
    expectedResult: validation message
`

func TestImportCatalog(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.dir, "catalog")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "search.yaml"), []byte(catalogYAML), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	out := h.mustRun("import", dir)
	if !strings.Contains(out, "imported 2, skipped 0, rejected 0") {
		t.Fatalf("unexpected import output:\n%s", out)
	}
	out = h.mustRun("import", dir)
	if !strings.Contains(out, "imported 0, skipped 2, rejected 0") || !strings.Contains(out, "skipped TC010") {
		t.Fatalf("re-import should skip:\n%s", out)
	}
	out = h.mustRun("-json", "list", "-title", "empty")
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil || listed.Count != 1 {
		t.Fatalf("unexpected list %s (%v)", out, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if code, _, stderr := h.run("import", dir); code != 1 || !strings.Contains(stderr, "broken.json") {
		t.Fatalf("broken catalog should fail: %d %s", code, stderr)
	}
}

func TestReportCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("create", "-id", "TC001", "-title", "Login", "-step", "open", "-expected", "ok")
	h.mustRun("record", "TC001", "-status", "Fail", "-actual", "500", "-by", "qa")

	out := h.mustRun("report")
	if !strings.Contains(out, "| TC001 | Login |") || !strings.Contains(out, "| Fail | 1 |") {
		t.Fatalf("unexpected markdown report:\n%s", out)
	}
	out = h.mustRun("report", "-format", "csv")
	if !strings.HasPrefix(out, "Test Case ID,Title,") {
		t.Fatalf("unexpected csv report:\n%s", out)
	}
	if code, _, _ := h.run("report", "-format", "csv,json"); code != 2 {
		t.Fatalf("several formats to stdout should be a usage error, got %d", code)
	}

	out = h.mustRun("-json", "report", "-publish", "-format", "md,json", "-by", "ci")
	var published struct {
		Job report.Job `json:"job"`
	}
	if err := json.Unmarshal([]byte(out), &published); err != nil {
		t.Fatalf("decode job: %v\n%s", err, out)
	}
	if published.Job.Status != report.JobSucceeded || len(published.Job.Artifacts) != 2 {
		t.Fatalf("unexpected job %+v", published.Job)
	}
	store, err := blob.NewFilesystem(filepath.Join(h.dir, "artifacts"))
	if err != nil {
		t.Fatalf("open artifacts: %v", err)
	}
	infos, err := store.List(context.Background(), report.KeyPrefix)
	if err != nil || len(infos) != 2 {
		t.Fatalf("expected two stored artifacts, got %d (%v)", len(infos), err)
	}
	for _, art := range published.Job.Artifacts {
		if !strings.HasPrefix(art.URL, "file://") {
			t.Fatalf("filesystem artifacts should carry file URLs: %+v", art)
		}
	}
}

func TestServeUntilDone(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = core.StorageMemory
	a := &app{cfg: cfg, logger: cfg.Log.NewLogger(io.Discard), stdout: io.Discard, stderr: io.Discard}
	svc, err := a.service(context.Background())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer func() { _ = a.close() }()
	pub := report.NewPublisher(svc, blob.NewMemory())
	pub.Start()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveUntilDone(ctx, a, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), pub)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
