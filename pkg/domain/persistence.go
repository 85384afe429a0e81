package domain

import (
	"context"
	"iter"
)

// Transaction exposes the record operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateTestCase(TestCase) (TestCase, error)
	UpdateTestCase(id string, patch Patch) (TestCase, error)
	ArchiveTestCase(id string, reason string) (ArchivedRecord, error)
	FindTestCase(id string) (TestCase, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListTestCases() []TestCase
	FindTestCase(id string) (TestCase, bool)
	FindArchived(id string) (ArchivedRecord, bool)
}

// PersistentStore is the record store contract shared by every backend.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// GetTestCase returns the active record, falling back to the archive.
	GetTestCase(id string) (TestCase, error)
	// ListTestCases returns a lazy, restartable sequence of active records.
	ListTestCases(filter Filter) iter.Seq[TestCase]
	ListArchived() []ArchivedRecord
	Revisions(id string) []Revision
	RulesEngine() *RulesEngine
	Close() error
}
