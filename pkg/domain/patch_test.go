package domain

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func executableCase() TestCase {
	return TestCase{
		ID:             "TC001",
		Title:          "Login success",
		Steps:          []string{"open login", "enter creds", "submit"},
		ExpectedResult: "redirect to dashboard",
		Status:         StatusNotRun,
	}
}

func TestPatchValidate(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		patch Patch
		want  error
	}{
		{"empty", Patch{}, nil},
		{"bad status", Patch{Status: ptr(Status("Skipped"))}, ErrInvalidStatus},
		{"actual without status", Patch{ActualResult: ptr("x")}, ErrInvalidTransition},
		{"tester without date", Patch{Status: ptr(StatusPass), TestedBy: ptr("alice")}, ErrInvalidTransition},
		{"date without tester", Patch{Status: ptr(StatusPass), DateExecuted: &at}, ErrInvalidTransition},
		{"blank tester", Patch{Status: ptr(StatusPass), TestedBy: ptr(" "), DateExecuted: &at}, ErrInvalidTransition},
		{"zero date", Patch{Status: ptr(StatusPass), TestedBy: ptr("alice"), DateExecuted: &time.Time{}}, ErrInvalidTransition},
		{"reset with status", Patch{ResetExecution: true, Status: ptr(StatusPass)}, ErrInvalidTransition},
		{"full execution", Patch{Status: ptr(StatusPass), ActualResult: ptr("ok"), TestedBy: ptr("alice"), DateExecuted: &at}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.patch.Validate()
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

func TestPatchApplyExecution(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.FixedZone("cet", 3600))
	patched, err := Patch{
		Status:       ptr(StatusPass),
		ActualResult: ptr("redirected correctly"),
		TestedBy:     ptr("alice"),
		DateExecuted: &at,
	}.Apply(executableCase())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if patched.Status != StatusPass || *patched.TestedBy != "alice" || *patched.ActualResult != "redirected correctly" {
		t.Fatalf("unexpected patched record %+v", patched)
	}
	if patched.DateExecuted.Location() != time.UTC || !patched.DateExecuted.Equal(at) {
		t.Fatalf("expected UTC execution date equal to input, got %v", patched.DateExecuted)
	}
}

func TestPatchApplyRejectsExecutionWithoutSteps(t *testing.T) {
	at := time.Now()
	record := executableCase()
	record.Steps = nil
	_, err := Patch{Status: ptr(StatusFail), TestedBy: ptr("bob"), DateExecuted: &at}.Apply(record)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPatchApplyStatusWithoutStampsOnFreshRecord(t *testing.T) {
	_, err := Patch{Status: ptr(StatusPass)}.Apply(executableCase())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPatchApplyResetExecution(t *testing.T) {
	at := time.Now()
	executed, err := Patch{Status: ptr(StatusFail), ActualResult: ptr("500"), TestedBy: ptr("bob"), DateExecuted: &at}.Apply(executableCase())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := (Patch{Status: ptr(StatusNotRun)}).Apply(executed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected NotRun with stamps to be rejected, got %v", err)
	}
	reset, err := Patch{ResetExecution: true}.Apply(executed)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Status != StatusNotRun || reset.TestedBy != nil || reset.DateExecuted != nil || reset.ActualResult != nil {
		t.Fatalf("expected cleared execution fields, got %+v", reset)
	}
}

func TestPatchApplyDescriptiveFieldsDoesNotAliasInput(t *testing.T) {
	steps := []string{"one"}
	data := TestData{Values: map[string]string{"k": "v"}}
	record := executableCase()
	patched, err := Patch{
		Title:          ptr("new title"),
		Description:    ptr("desc"),
		Preconditions:  ptr("logged out"),
		Steps:          &steps,
		TestData:       &data,
		ExpectedResult: ptr("ok"),
		Comments:       ptr("flaky on CI"),
	}.Apply(record)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	steps[0] = "mutated"
	data.Values["k"] = "mutated"
	if patched.Steps[0] != "one" || patched.TestData.Values["k"] != "v" {
		t.Fatalf("patched record aliases patch input: %+v", patched)
	}
	if record.Title != "Login success" {
		t.Fatalf("apply mutated the input record")
	}
	if patched.Title != "new title" || patched.Comments != "flaky on CI" || patched.Preconditions != "logged out" {
		t.Fatalf("unexpected patched fields %+v", patched)
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Fatalf("zero patch must be empty")
	}
	if (Patch{ResetExecution: true}).IsEmpty() || (Patch{Comments: ptr("")}).IsEmpty() {
		t.Fatalf("non-zero patch reported empty")
	}
}
