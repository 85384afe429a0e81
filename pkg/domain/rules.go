package domain

import (
	"context"
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present. It
// matches ErrInvalidTransition.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrInvalidTransition so callers can use errors.Is.
func (e RuleViolationError) Unwrap() error { return ErrInvalidTransition }

// RuleView provides read-only access to registry records for rule evaluation.
type RuleView interface {
	ListTestCases() []TestCase
	FindTestCase(id string) (TestCase, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine returns an engine with the built-in execution rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(ExecutionEligibilityRule())
	engine.Register(ExecutionStampRule())
	engine.Register(ExpectedResultRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in registration order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// Name implements Rule.
func (r RuleFunc) Name() string { return r.RuleName }

// Evaluate implements Rule.
func (r RuleFunc) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	if r.Fn == nil {
		return Result{}, nil
	}
	return r.Fn(ctx, view, changes)
}

// afterStates yields the post-change record of every create or update.
func afterStates(changes []Change) []TestCase {
	var out []TestCase
	for _, c := range changes {
		if c.Entity != EntityTestCase || c.After == nil {
			continue
		}
		if c.Action == ActionCreate || c.Action == ActionUpdate {
			out = append(out, *c.After)
		}
	}
	return out
}

// ExecutionEligibilityRule blocks execution outcomes on records without steps.
func ExecutionEligibilityRule() Rule {
	const name = "execution_eligibility"
	return RuleFunc{RuleName: name, Fn: func(_ context.Context, _ RuleView, changes []Change) (Result, error) {
		var res Result
		for _, tc := range afterStates(changes) {
			if tc.Status.Executed() && !tc.Executable() {
				res.Violations = append(res.Violations, Violation{
					Rule:     name,
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("test case %s has no steps and cannot be executed", tc.ID),
					Entity:   EntityTestCase,
					EntityID: tc.ID,
				})
			}
		}
		return res, nil
	}}
}

// ExecutionStampRule blocks records whose testedBy and dateExecuted disagree.
func ExecutionStampRule() Rule {
	const name = "execution_stamp_pairing"
	return RuleFunc{RuleName: name, Fn: func(_ context.Context, _ RuleView, changes []Change) (Result, error) {
		var res Result
		for _, tc := range afterStates(changes) {
			if (tc.TestedBy == nil) != (tc.DateExecuted == nil) {
				res.Violations = append(res.Violations, Violation{
					Rule:     name,
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("test case %s must set testedBy and dateExecuted together", tc.ID),
					Entity:   EntityTestCase,
					EntityID: tc.ID,
				})
			}
		}
		return res, nil
	}}
}

// ExpectedResultRule warns when a case is executed without an expected result.
func ExpectedResultRule() Rule {
	const name = "expected_result_present"
	return RuleFunc{RuleName: name, Fn: func(_ context.Context, _ RuleView, changes []Change) (Result, error) {
		var res Result
		for _, tc := range afterStates(changes) {
			if tc.Status.Executed() && strings.TrimSpace(tc.ExpectedResult) == "" {
				res.Violations = append(res.Violations, Violation{
					Rule:     name,
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("test case %s was executed without an expected result", tc.ID),
					Entity:   EntityTestCase,
					EntityID: tc.ID,
				})
			}
		}
		return res, nil
	}}
}
