package catalog

import (
	"caseledger/pkg/domain"
	"context"
	"errors"
	"fmt"
)

// Creator is the slice of the registry service the importer needs.
type Creator interface {
	CreateTestCase(ctx context.Context, tc domain.TestCase) (domain.TestCase, domain.Result, error)
}

// Failure records a test case the registry rejected.
type Failure struct {
	Source string
	ID     string
	Err    error
}

// Report summarizes an import run.
type Report struct {
	Created    []string
	Duplicates []Failure
	Rejected   []Failure
	Warnings   []domain.Violation
}

// Err returns the rejected entries as one joined error, or nil. Duplicates
// are not errors: re-importing a catalog is expected to skip known ids.
func (r Report) Err() error {
	if len(r.Rejected) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Rejected))
	for _, f := range r.Rejected {
		errs = append(errs, fmt.Errorf("%s %s: %w", f.Source, f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Import creates every test case in sources through creator. Individual
// failures are collected in the report and do not stop the run; only a done
// context aborts it.
func Import(ctx context.Context, creator Creator, sources []Source) (Report, error) {
	var rep Report
	for _, src := range sources {
		for _, tc := range src.TestCases {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			created, res, err := creator.CreateTestCase(ctx, tc)
			switch {
			case err == nil:
				rep.Created = append(rep.Created, created.ID)
				rep.Warnings = append(rep.Warnings, res.Warnings()...)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return rep, err
			case errors.Is(err, domain.ErrDuplicateID):
				rep.Duplicates = append(rep.Duplicates, Failure{Source: src.Path, ID: tc.ID, Err: err})
			default:
				rep.Rejected = append(rep.Rejected, Failure{Source: src.Path, ID: tc.ID, Err: err})
			}
		}
	}
	return rep, nil
}
