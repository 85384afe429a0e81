package domain

import (
	"fmt"
	"strings"
	"time"
)

// Patch is a partial update of a test case. Nil fields are left unchanged.
// The id is immutable and cannot be patched.
type Patch struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Preconditions  *string    `json:"preconditions,omitempty"`
	Steps          *[]string  `json:"steps,omitempty"`
	TestData       *TestData  `json:"testData,omitempty"`
	ExpectedResult *string    `json:"expectedResult,omitempty"`
	ActualResult   *string    `json:"actualResult,omitempty"`
	Status         *Status    `json:"status,omitempty"`
	Comments       *string    `json:"comments,omitempty"`
	TestedBy       *string    `json:"testedBy,omitempty"`
	DateExecuted   *time.Time `json:"dateExecuted,omitempty"`
	// ResetExecution returns the record to NotRun and clears actualResult,
	// testedBy and dateExecuted. It cannot be combined with execution fields.
	ResetExecution bool `json:"resetExecution,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Preconditions == nil &&
		p.Steps == nil && p.TestData == nil && p.ExpectedResult == nil &&
		p.ActualResult == nil && p.Status == nil && p.Comments == nil &&
		p.TestedBy == nil && p.DateExecuted == nil && !p.ResetExecution
}

// touchesExecution reports whether any execution field is present.
func (p Patch) touchesExecution() bool {
	return p.ActualResult != nil || p.Status != nil || p.TestedBy != nil || p.DateExecuted != nil
}

// Validate checks the patch on its own, independent of the target record.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	if p.ResetExecution && p.touchesExecution() {
		return fmt.Errorf("%w: reset cannot be combined with execution fields", ErrInvalidTransition)
	}
	if p.ActualResult != nil && p.Status == nil {
		return fmt.Errorf("%w: actualResult requires status", ErrInvalidTransition)
	}
	if (p.TestedBy == nil) != (p.DateExecuted == nil) {
		return fmt.Errorf("%w: testedBy and dateExecuted must be set together", ErrInvalidTransition)
	}
	if p.TestedBy != nil && strings.TrimSpace(*p.TestedBy) == "" {
		return fmt.Errorf("%w: testedBy must not be blank", ErrInvalidTransition)
	}
	if p.DateExecuted != nil && p.DateExecuted.IsZero() {
		return fmt.Errorf("%w: dateExecuted must not be zero", ErrInvalidTransition)
	}
	return nil
}

// Apply validates the patch and returns the patched copy of tc. The result is
// checked against the record invariants before it is returned.
func (p Patch) Apply(tc TestCase) (TestCase, error) {
	if err := p.Validate(); err != nil {
		return TestCase{}, err
	}
	out := tc.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Preconditions != nil {
		out.Preconditions = *p.Preconditions
	}
	if p.Steps != nil {
		out.Steps = append([]string(nil), (*p.Steps)...)
	}
	if p.TestData != nil {
		out.TestData = p.TestData.clone()
	}
	if p.ExpectedResult != nil {
		out.ExpectedResult = *p.ExpectedResult
	}
	if p.Comments != nil {
		out.Comments = *p.Comments
	}
	if p.ResetExecution {
		out.Status = StatusNotRun
		out.ActualResult = nil
		out.TestedBy = nil
		out.DateExecuted = nil
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.ActualResult != nil {
		out.ActualResult = cloneString(p.ActualResult)
	}
	if p.TestedBy != nil {
		out.TestedBy = cloneString(p.TestedBy)
		t := p.DateExecuted.UTC()
		out.DateExecuted = &t
	}
	if err := out.CheckInvariants(); err != nil {
		return TestCase{}, err
	}
	return out, nil
}
