// Package memory provides the in-memory record store. It backs tests and
// ephemeral environments directly and is wrapped by every durable backend.
package memory

import (
	"caseledger/pkg/domain"
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// TestCase aliases domain.TestCase for in-memory persistence operations.
	TestCase = domain.TestCase
	// ArchivedRecord aliases domain.ArchivedRecord.
	ArchivedRecord = domain.ArchivedRecord
	// Revision aliases domain.Revision.
	Revision = domain.Revision
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs inside the store's exclusive lock after rules pass and
// before the new state becomes visible. A non-nil error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for revision and archive stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook installs a hook that persists each committed snapshot.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commit = hook }
}

// Store provides an in-memory transactional store for test-case records.
// Mutations hold the exclusive lock for their full duration, commit hook
// included; reads share the read lock.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook. Durable backends call it after
// hydrating the store so that loading does not write back.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit = hook
}

func newEntryID() string {
	return uuid.NewString()
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state with the snapshot after
// normalizing and validating it. The commit hook is not invoked.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the engine evaluated on every commit.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc exposes the store clock.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Close releases nothing; it satisfies domain.PersistentStore.
func (s *Store) Close() error { return nil }

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListTestCases returns the active records in insertion order.
func (v transactionView) ListTestCases() []TestCase {
	out := make([]TestCase, 0, len(v.state.order))
	for _, id := range v.state.order {
		out = append(out, v.state.records[id].Clone())
	}
	return out
}

// FindTestCase retrieves an active record by id.
func (v transactionView) FindTestCase(id string) (TestCase, bool) {
	tc, ok := v.state.records[id]
	if !ok {
		return TestCase{}, false
	}
	return tc.Clone(), true
}

// FindArchived retrieves an archived record by id.
func (v transactionView) FindArchived(id string) (ArchivedRecord, bool) {
	a, ok := v.state.archive[id]
	if !ok {
		return ArchivedRecord{}, false
	}
	return a.Clone(), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds, no rule blocks,
// and the commit hook (if any) succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil && len(tx.changes) > 0 {
		if err := s.commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transaction state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindTestCase looks up an active record within the transaction scope.
func (tx *transaction) FindTestCase(id string) (TestCase, bool) {
	return newTransactionView(&tx.state).FindTestCase(id)
}

// CreateTestCase stores a new record with status NotRun and cleared execution
// fields. An empty id is replaced by a generated one.
func (tx *transaction) CreateTestCase(tc TestCase) (TestCase, error) {
	tc.ID = strings.TrimSpace(tc.ID)
	if tc.ID == "" {
		tc.ID = "TC-" + newEntryID()
	}
	if tx.state.exists(tc.ID) {
		return TestCase{}, fmt.Errorf("%w: %q", domain.ErrDuplicateID, tc.ID)
	}
	tc.Status = domain.StatusNotRun
	tc.ActualResult = nil
	tc.TestedBy = nil
	tc.DateExecuted = nil
	stored := tc.Clone()
	tx.state.records[tc.ID] = stored
	tx.state.order = append(tx.state.order, tc.ID)
	after := stored.Clone()
	tx.recordChange(Change{Entity: domain.EntityTestCase, Action: domain.ActionCreate, ID: tc.ID, After: &after})
	return stored.Clone(), nil
}

// UpdateTestCase applies patch to an active record. The superseded version is
// kept as a revision.
func (tx *transaction) UpdateTestCase(id string, patch domain.Patch) (TestCase, error) {
	current, ok := tx.state.records[id]
	if !ok {
		if _, archived := tx.state.archive[id]; archived {
			return TestCase{}, fmt.Errorf("%w: test case %q is archived", domain.ErrInvalidTransition, id)
		}
		return TestCase{}, fmt.Errorf("%w: %q", domain.ErrNotFound, id)
	}
	if patch.IsEmpty() {
		return current.Clone(), nil
	}
	next, err := patch.Apply(current)
	if err != nil {
		return TestCase{}, fmt.Errorf("update %q: %w", id, err)
	}
	next.ID = id
	revs := tx.state.revisions[id]
	tx.state.revisions[id] = append(revs, Revision{
		ID:           id,
		Sequence:     len(revs) + 1,
		Record:       current.Clone(),
		SupersededAt: tx.now,
	})
	tx.state.records[id] = next.Clone()
	before := current.Clone()
	after := next.Clone()
	tx.recordChange(Change{Entity: domain.EntityTestCase, Action: domain.ActionUpdate, ID: id, Before: &before, After: &after})
	return next.Clone(), nil
}

// ArchiveTestCase moves an active record into the archival partition.
func (tx *transaction) ArchiveTestCase(id string, reason string) (ArchivedRecord, error) {
	current, ok := tx.state.records[id]
	if !ok {
		return ArchivedRecord{}, fmt.Errorf("%w: %q", domain.ErrNotFound, id)
	}
	entry := ArchivedRecord{
		EntryID:    newEntryID(),
		Record:     current.Clone(),
		Reason:     reason,
		ArchivedAt: tx.now,
	}
	delete(tx.state.records, id)
	tx.state.order = removeID(tx.state.order, id)
	tx.state.archive[id] = entry
	tx.state.archiveOrder = append(tx.state.archiveOrder, id)
	before := current.Clone()
	tx.recordChange(Change{Entity: domain.EntityTestCase, Action: domain.ActionArchive, ID: id, Before: &before})
	return entry.Clone(), nil
}

// Read helpers ---------------------------------------------------------------

// GetTestCase returns the active record, falling back to the archive.
func (s *Store) GetTestCase(id string) (TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tc, ok := s.state.records[id]; ok {
		return tc.Clone(), nil
	}
	if a, ok := s.state.archive[id]; ok {
		return a.Record.Clone(), nil
	}
	return TestCase{}, fmt.Errorf("%w: %q", domain.ErrNotFound, id)
}

// ListTestCases returns a lazy sequence over the active records matching
// filter. Nothing is read until the sequence is ranged over; every range
// takes a fresh snapshot, so the sequence can be restarted and the caller may
// mutate the store from inside the loop.
func (s *Store) ListTestCases(filter domain.Filter) iter.Seq[TestCase] {
	return func(yield func(TestCase) bool) {
		s.mu.RLock()
		matched := make([]TestCase, 0, len(s.state.order))
		for _, id := range s.state.order {
			tc := s.state.records[id]
			if filter.Matches(tc) {
				matched = append(matched, tc.Clone())
			}
		}
		s.mu.RUnlock()

		filter.Sort(matched)
		for _, tc := range matched {
			if !yield(tc) {
				return
			}
		}
	}
}

// ListArchived returns archived entries in the order they were archived.
func (s *Store) ListArchived() []ArchivedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ArchivedRecord, 0, len(s.state.archiveOrder))
	for _, id := range s.state.archiveOrder {
		out = append(out, s.state.archive[id].Clone())
	}
	return out
}

// Revisions returns the superseded versions of id, oldest first.
func (s *Store) Revisions(id string) []Revision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs := s.state.revisions[id]
	out := make([]Revision, 0, len(revs))
	for _, r := range revs {
		out = append(out, r.Clone())
	}
	return out
}
