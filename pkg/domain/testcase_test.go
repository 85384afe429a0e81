package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"NotRun":  StatusNotRun,
		"not_run": StatusNotRun,
		"not-run": StatusNotRun,
		"pass":    StatusPass,
		" FAIL ":  StatusFail,
		"Blocked": StatusBlocked,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseStatus("Skipped"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestStatusPredicates(t *testing.T) {
	if Status("").Valid() {
		t.Fatalf("zero status must be invalid")
	}
	if StatusNotRun.Executed() {
		t.Fatalf("NotRun must not count as executed")
	}
	for _, s := range []Status{StatusPass, StatusFail, StatusBlocked} {
		if !s.Valid() || !s.Executed() {
			t.Fatalf("%s must be valid and executed", s)
		}
	}
}

func TestStatusUnmarshalRejectsUnknown(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"Flaky"`), &s); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err := json.Unmarshal([]byte(`3`), &s); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for non-string, got %v", err)
	}
	if err := json.Unmarshal([]byte(`"Pass"`), &s); err != nil || s != StatusPass {
		t.Fatalf("expected Pass, got %s (%v)", s, err)
	}
}

func TestTestDataJSONForms(t *testing.T) {
	var text TestData
	if err := json.Unmarshal([]byte(`"user=alice"`), &text); err != nil {
		t.Fatalf("unmarshal text: %v", err)
	}
	if text.Text != "user=alice" || text.Values != nil {
		t.Fatalf("unexpected text data %+v", text)
	}

	var mapping TestData
	if err := json.Unmarshal([]byte(`{"user":"alice","attempts":3,"remember":true,"note":null}`), &mapping); err != nil {
		t.Fatalf("unmarshal mapping: %v", err)
	}
	want := map[string]string{"user": "alice", "attempts": "3", "remember": "true", "note": ""}
	if diff := cmp.Diff(want, mapping.Values); diff != "" {
		t.Fatalf("mapping mismatch (-want +got):\n%s", diff)
	}
	if got := mapping.String(); got != "attempts=3, note=, remember=true, user=alice" {
		t.Fatalf("unexpected rendering %q", got)
	}

	encoded, err := json.Marshal(TestData{Values: map[string]string{"k": "v"}})
	if err != nil || string(encoded) != `{"k":"v"}` {
		t.Fatalf("unexpected encoding %s (%v)", encoded, err)
	}
	encoded, err = json.Marshal(TestData{})
	if err != nil || string(encoded) != `""` {
		t.Fatalf("unexpected empty encoding %s (%v)", encoded, err)
	}

	var null TestData
	if err := json.Unmarshal([]byte(`null`), &null); err != nil || !null.IsZero() {
		t.Fatalf("expected zero test data from null, got %+v (%v)", null, err)
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &null); err == nil {
		t.Fatalf("expected array test data to be rejected")
	}
}

func TestTestCaseJSONFieldNames(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	actual := "redirected"
	tester := "alice"
	tc := TestCase{
		ID:             "TC001",
		Title:          "Login success",
		Steps:          []string{"open login"},
		ExpectedResult: "redirect to dashboard",
		ActualResult:   &actual,
		Status:         StatusPass,
		TestedBy:       &tester,
		DateExecuted:   &at,
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"id":"TC001"`, `"expectedResult"`, `"actualResult":"redirected"`, `"status":"Pass"`, `"testedBy":"alice"`, `"dateExecuted":"2026-03-01T10:00:00Z"`, `"testData":""`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("expected %s in %s", field, raw)
		}
	}
	var decoded TestCase
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(tc, decoded); diff != "" {
		t.Fatalf("decoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestTestCaseCloneIsDeep(t *testing.T) {
	at := time.Now().UTC()
	tester := "bob"
	original := TestCase{
		ID:           "TC1",
		Steps:        []string{"a", "b"},
		TestData:     TestData{Values: map[string]string{"k": "v"}},
		TestedBy:     &tester,
		DateExecuted: &at,
	}
	cp := original.Clone()
	cp.Steps[0] = "changed"
	cp.TestData.Values["k"] = "changed"
	*cp.TestedBy = "mallory"
	if original.Steps[0] != "a" || original.TestData.Values["k"] != "v" || *original.TestedBy != "bob" {
		t.Fatalf("clone shares state with original: %+v", original)
	}
}

func TestCheckInvariants(t *testing.T) {
	at := time.Now().UTC()
	tester := "alice"
	actual := "ok"
	cases := []struct {
		name string
		tc   TestCase
		want error
	}{
		{"fresh record", TestCase{ID: "a", Status: StatusNotRun}, nil},
		{"bad status", TestCase{ID: "a", Status: "Skipped"}, ErrInvalidStatus},
		{"tester without date", TestCase{ID: "a", Status: StatusNotRun, TestedBy: &tester}, ErrInvalidTransition},
		{"not run with stamps", TestCase{ID: "a", Status: StatusNotRun, TestedBy: &tester, DateExecuted: &at}, ErrInvalidTransition},
		{"not run with result", TestCase{ID: "a", Status: StatusNotRun, ActualResult: &actual}, ErrInvalidTransition},
		{"pass without stamps", TestCase{ID: "a", Steps: []string{"s"}, Status: StatusPass}, ErrInvalidTransition},
		{"pass without steps", TestCase{ID: "a", Status: StatusPass, TestedBy: &tester, DateExecuted: &at}, ErrInvalidTransition},
		{"pass", TestCase{ID: "a", Steps: []string{"s"}, Status: StatusPass, TestedBy: &tester, DateExecuted: &at}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tc.CheckInvariants()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
