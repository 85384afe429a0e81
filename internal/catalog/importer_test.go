package catalog

import (
	"caseledger/internal/core"
	"caseledger/pkg/domain"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestImportThroughService(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(domain.NewDefaultRulesEngine())
	if _, _, err := svc.CreateTestCase(ctx, domain.TestCase{ID: "TC002", Title: "existing", Steps: []string{"x"}, ExpectedResult: "y"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases, err := Parse([]byte(yamlCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sources := []Source{{Path: "auth.yaml", TestCases: cases}}

	rep, err := Import(ctx, svc, sources)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if diff := cmp.Diff([]string{"TC001"}, rep.Created); diff != "" {
		t.Fatalf("created mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Duplicates) != 1 || rep.Duplicates[0].ID != "TC002" || rep.Duplicates[0].Source != "auth.yaml" {
		t.Fatalf("unexpected duplicates %+v", rep.Duplicates)
	}
	if !errors.Is(rep.Duplicates[0].Err, domain.ErrDuplicateID) {
		t.Fatalf("duplicate error lost its sentinel: %v", rep.Duplicates[0].Err)
	}
	if rep.Err() != nil {
		t.Fatalf("duplicates must not fail the import: %v", rep.Err())
	}

	got, err := svc.GetTestCase(ctx, "TC001")
	if err != nil || got.Status != domain.StatusNotRun || got.Title != "Login success" {
		t.Fatalf("imported record %+v (%v)", got, err)
	}

	again, err := Import(ctx, svc, sources)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(again.Created) != 0 || len(again.Duplicates) != 2 {
		t.Fatalf("re-import should only report duplicates: %+v", again)
	}
}

type scriptedCreator struct {
	errs  map[string]error
	calls []string
}

func (c *scriptedCreator) CreateTestCase(_ context.Context, tc domain.TestCase) (domain.TestCase, domain.Result, error) {
	c.calls = append(c.calls, tc.ID)
	if err := c.errs[tc.ID]; err != nil {
		return domain.TestCase{}, domain.Result{}, err
	}
	res := domain.Result{Violations: []domain.Violation{{Rule: "expected_result_present", Severity: domain.SeverityWarn, EntityID: tc.ID}}}
	return tc, res, nil
}

func TestImportCollectsFailuresAndContinues(t *testing.T) {
	creator := &scriptedCreator{errs: map[string]error{
		"B": domain.ErrInvalidTransition,
		"C": domain.ErrDuplicateID,
	}}
	sources := []Source{
		{Path: "one.yaml", TestCases: []domain.TestCase{{ID: "A"}, {ID: "B"}}},
		{Path: "two.yaml", TestCases: []domain.TestCase{{ID: "C"}, {ID: "D"}}},
	}
	rep, err := Import(context.Background(), creator, sources)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, creator.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "D"}, rep.Created); diff != "" {
		t.Fatalf("created mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Warnings) != 2 {
		t.Fatalf("expected warnings from both creates, got %+v", rep.Warnings)
	}
	if len(rep.Rejected) != 1 || rep.Rejected[0].Source != "one.yaml" {
		t.Fatalf("unexpected rejected %+v", rep.Rejected)
	}
	if err := rep.Err(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("report error should wrap the rejection, got %v", err)
	}
}

func TestImportStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	creator := &scriptedCreator{}
	rep, err := Import(ctx, creator, []Source{{TestCases: []domain.TestCase{{ID: "A"}}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(creator.calls) != 0 || len(rep.Created) != 0 {
		t.Fatalf("nothing should be created after cancel: %+v", rep)
	}

	creator = &scriptedCreator{errs: map[string]error{"A": context.DeadlineExceeded}}
	if _, err := Import(context.Background(), creator, []Source{{TestCases: []domain.TestCase{{ID: "A"}, {ID: "B"}}}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error to abort, got %v", err)
	}
	if len(creator.calls) != 1 {
		t.Fatalf("import continued after deadline: %v", creator.calls)
	}
}
