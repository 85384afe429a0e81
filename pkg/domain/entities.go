// Package domain defines the test-case record, its status lifecycle, and the
// rule evaluation primitives used by caseledger.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in Change records and audit entries.
const (
	// EntityTestCase identifies a test-case record.
	EntityTestCase EntityType = "test_case"
)

// Status is the execution status of a test case.
type Status string

// Canonical statuses. The zero value is not a valid status; records created
// through a store always start at StatusNotRun.
const (
	StatusNotRun  Status = "NotRun"
	StatusPass    Status = "Pass"
	StatusFail    Status = "Fail"
	StatusBlocked Status = "Blocked"
)

// Statuses lists every status in canonical order.
func Statuses() []Status {
	return []Status{StatusNotRun, StatusPass, StatusFail, StatusBlocked}
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotRun, StatusPass, StatusFail, StatusBlocked:
		return true
	}
	return false
}

// Executed reports whether s records an execution outcome.
func (s Status) Executed() bool {
	return s == StatusPass || s == StatusFail || s == StatusBlocked
}

// ParseStatus resolves a status name case-insensitively. "not_run" and
// "not-run" are accepted as aliases of NotRun.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	for _, s := range Statuses() {
		if strings.ToLower(string(s)) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// UnmarshalJSON rejects names outside the enumeration.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, string(data))
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TestData holds the inputs of a test case. It is either free text or a
// mapping of named input values; in JSON it is a string or an object.
type TestData struct {
	Text   string
	Values map[string]string
}

// IsZero reports whether no test data is present.
func (d TestData) IsZero() bool {
	return d.Text == "" && len(d.Values) == 0
}

// Keys returns the mapping keys in sorted order.
func (d TestData) Keys() []string {
	keys := make([]string, 0, len(d.Values))
	for k := range d.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the data as a single line: the free text, or sorted
// key=value pairs.
func (d TestData) String() string {
	if len(d.Values) == 0 {
		return d.Text
	}
	parts := make([]string, 0, len(d.Values))
	for _, k := range d.Keys() {
		parts = append(parts, k+"="+d.Values[k])
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON encodes mappings as objects and everything else as a string.
func (d TestData) MarshalJSON() ([]byte, error) {
	if len(d.Values) > 0 {
		return json.Marshal(d.Values)
	}
	return json.Marshal(d.Text)
}

// UnmarshalJSON accepts a string, an object of scalars, or null.
func (d *TestData) UnmarshalJSON(data []byte) error {
	*d = TestData{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		return json.Unmarshal(data, &d.Text)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("test data must be a string or an object: %w", err)
	}
	d.Values = make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			d.Values[k] = val
		case nil:
			d.Values[k] = ""
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("test data %q: %w", k, err)
			}
			d.Values[k] = string(encoded)
		}
	}
	return nil
}

func (d TestData) clone() TestData {
	cp := TestData{Text: d.Text}
	if d.Values != nil {
		cp.Values = make(map[string]string, len(d.Values))
		for k, v := range d.Values {
			cp.Values[k] = v
		}
	}
	return cp
}

// TestCase is one row of the test-case table.
type TestCase struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Preconditions  string     `json:"preconditions"`
	Steps          []string   `json:"steps"`
	TestData       TestData   `json:"testData"`
	ExpectedResult string     `json:"expectedResult"`
	ActualResult   *string    `json:"actualResult"`
	Status         Status     `json:"status"`
	Comments       string     `json:"comments,omitempty"`
	TestedBy       *string    `json:"testedBy"`
	DateExecuted   *time.Time `json:"dateExecuted"`
}

// Clone returns a deep copy of the record.
func (tc TestCase) Clone() TestCase {
	cp := tc
	if tc.Steps != nil {
		cp.Steps = append([]string(nil), tc.Steps...)
	}
	cp.TestData = tc.TestData.clone()
	cp.ActualResult = cloneString(tc.ActualResult)
	cp.TestedBy = cloneString(tc.TestedBy)
	if tc.DateExecuted != nil {
		t := *tc.DateExecuted
		cp.DateExecuted = &t
	}
	return cp
}

// Executable reports whether the record may receive an execution outcome.
func (tc TestCase) Executable() bool {
	return len(tc.Steps) > 0
}

// CheckInvariants validates the status/stamp invariants of a stored record.
// Violations are reported as ErrInvalidTransition or ErrInvalidStatus.
func (tc TestCase) CheckInvariants() error {
	if !tc.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, tc.Status)
	}
	hasTester := tc.TestedBy != nil
	hasDate := tc.DateExecuted != nil
	if hasTester != hasDate {
		return fmt.Errorf("%w: testedBy and dateExecuted must be set together", ErrInvalidTransition)
	}
	if tc.Status == StatusNotRun && (hasDate || tc.ActualResult != nil) {
		return fmt.Errorf("%w: status NotRun cannot carry execution results", ErrInvalidTransition)
	}
	if tc.Status.Executed() {
		if !hasDate {
			return fmt.Errorf("%w: status %s requires testedBy and dateExecuted", ErrInvalidTransition, tc.Status)
		}
		if !tc.Executable() {
			return fmt.Errorf("%w: test case %q has no steps", ErrInvalidTransition, tc.ID)
		}
	}
	return nil
}

// ArchivedRecord is a test case moved to the archival partition.
type ArchivedRecord struct {
	EntryID    string    `json:"entryId"`
	Record     TestCase  `json:"record"`
	Reason     string    `json:"reason,omitempty"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Clone returns a deep copy of the archived entry.
func (a ArchivedRecord) Clone() ArchivedRecord {
	cp := a
	cp.Record = a.Record.Clone()
	return cp
}

// Revision preserves the version of a record that an update superseded.
type Revision struct {
	ID           string    `json:"id"`
	Sequence     int       `json:"sequence"`
	Record       TestCase  `json:"record"`
	SupersededAt time.Time `json:"supersededAt"`
}

// Clone returns a deep copy of the revision.
func (r Revision) Clone() Revision {
	cp := r
	cp.Record = r.Record.Clone()
	return cp
}

// Change describes a single mutation captured within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before *TestCase
	After  *TestCase
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in the audit trail.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	// ActionArchive indicates a record was moved to the archive.
	ActionArchive Action = "archive"
)

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
