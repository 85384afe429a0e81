// Package core hosts the registry service: the operations callers use to
// create, execute, archive and summarize test cases on top of a record store.
package core

import (
	"caseledger/internal/infra/persistence/memory"
	"caseledger/pkg/domain"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

type (
	TestCase       = domain.TestCase
	ArchivedRecord = domain.ArchivedRecord
	Revision       = domain.Revision
	Patch          = domain.Patch
	Filter         = domain.Filter
	Summary        = domain.Summary
	Status         = domain.Status
	Result         = domain.Result
	RulesEngine    = domain.RulesEngine
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for execution stamps, summaries and audit timestamps.
func WithClock(clock ClockFunc) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder sets the recorder receiving mutation audit entries.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Service exposes the registry operations over a persistent store.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   ClockFunc
	now     func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.now = selectNowFunc(store, s.clock)
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

// selectNowFunc prefers an explicit clock, then the store's clock.
func selectNowFunc(store domain.PersistentStore, clock ClockFunc) func() time.Time {
	if clock != nil {
		return clock.Now
	}
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return ClockFunc(nil).Now
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

// run wraps op with tracing, metrics, audit and logging. fn returns the id of
// the affected record for audit purposes.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	id, err := fn(ctx)
	duration := time.Since(started)

	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, id, duration, err)

	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "id", id, "duration", duration)
	case isClientError(err):
		s.logger.Warn("operation rejected", "operation", op, "id", id, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "id", id, "error", err)
	}
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrDuplicateID) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrInvalidStatus)
}

func logWarnings(logger Logger, op string, res Result) {
	for _, v := range res.Warnings() {
		logger.Warn("rule warning", "operation", op, "rule", v.Rule, "id", v.EntityID, "message", v.Message)
	}
}

// CreateTestCase stores a new record. The stored record always starts NotRun.
func (s *Service) CreateTestCase(ctx context.Context, tc TestCase) (TestCase, Result, error) {
	var (
		created TestCase
		res     Result
	)
	err := s.run(ctx, OpCreateTestCase, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateTestCase(tc)
			return err
		})
		if err != nil {
			return tc.ID, err
		}
		logWarnings(s.logger, OpCreateTestCase, res)
		return created.ID, nil
	})
	return created, res, err
}

// GetTestCase returns an active or archived record.
func (s *Service) GetTestCase(ctx context.Context, id string) (TestCase, error) {
	var tc TestCase
	err := s.run(ctx, OpGetTestCase, func(context.Context) (string, error) {
		var err error
		tc, err = s.store.GetTestCase(id)
		return id, err
	})
	return tc, err
}

// UpdateTestCase applies a partial change to an active record.
func (s *Service) UpdateTestCase(ctx context.Context, id string, patch Patch) (TestCase, Result, error) {
	var (
		updated TestCase
		res     Result
	)
	err := s.run(ctx, OpUpdateTestCase, func(ctx context.Context) (string, error) {
		if err := patch.Validate(); err != nil {
			return id, fmt.Errorf("update %q: %w", id, err)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateTestCase(id, patch)
			return err
		})
		if err == nil {
			logWarnings(s.logger, OpUpdateTestCase, res)
		}
		return id, err
	})
	return updated, res, err
}

// ListTestCases validates filter and returns a lazy, restartable sequence of
// matching active records.
func (s *Service) ListTestCases(ctx context.Context, filter Filter) (iter.Seq[TestCase], error) {
	var seq iter.Seq[TestCase]
	err := s.run(ctx, OpListTestCases, func(context.Context) (string, error) {
		if err := filter.Validate(); err != nil {
			return "", err
		}
		seq = s.store.ListTestCases(filter)
		return "", nil
	})
	return seq, err
}

// ArchiveTestCase moves an active record to the archive.
func (s *Service) ArchiveTestCase(ctx context.Context, id, reason string) (ArchivedRecord, Result, error) {
	var (
		archived ArchivedRecord
		res      Result
	)
	err := s.run(ctx, OpArchiveTestCase, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			archived, err = tx.ArchiveTestCase(id, strings.TrimSpace(reason))
			return err
		})
		return id, err
	})
	return archived, res, err
}

// RecordExecution stores an execution outcome stamped with the service clock.
// status must be Pass, Fail or Blocked and testedBy must be non-blank.
func (s *Service) RecordExecution(ctx context.Context, id string, status Status, actualResult, testedBy string) (TestCase, Result, error) {
	var (
		updated TestCase
		res     Result
	)
	err := s.run(ctx, OpRecordExecution, func(ctx context.Context) (string, error) {
		if !status.Executed() {
			return id, fmt.Errorf("%w: execution status must be one of Pass, Fail, Blocked; got %q", domain.ErrInvalidStatus, status)
		}
		tester := strings.TrimSpace(testedBy)
		if tester == "" {
			return id, fmt.Errorf("%w: testedBy is required", domain.ErrInvalidTransition)
		}
		executedAt := s.now()
		patch := Patch{Status: &status, TestedBy: &tester, DateExecuted: &executedAt}
		if actualResult != "" {
			patch.ActualResult = &actualResult
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateTestCase(id, patch)
			return err
		})
		if err != nil {
			return id, fmt.Errorf("record execution: %w", err)
		}
		logWarnings(s.logger, OpRecordExecution, res)
		return id, nil
	})
	return updated, res, err
}

// Summary aggregates the active records matching filter from one snapshot.
func (s *Service) Summary(ctx context.Context, filter Filter) (Summary, error) {
	var summary Summary
	err := s.run(ctx, OpSummary, func(context.Context) (string, error) {
		if err := filter.Validate(); err != nil {
			return "", err
		}
		var records []TestCase
		for tc := range s.store.ListTestCases(filter) {
			records = append(records, tc)
		}
		summary = domain.Summarize(records, s.now())
		return "", nil
	})
	return summary, err
}

// Revisions returns the superseded versions of id, oldest first.
func (s *Service) Revisions(ctx context.Context, id string) ([]Revision, error) {
	var revs []Revision
	err := s.run(ctx, OpRevisions, func(context.Context) (string, error) {
		if _, err := s.store.GetTestCase(id); err != nil {
			return id, err
		}
		revs = s.store.Revisions(id)
		return id, nil
	})
	return revs, err
}

// ListArchived returns archived entries in archive order.
func (s *Service) ListArchived(ctx context.Context) ([]ArchivedRecord, error) {
	var out []ArchivedRecord
	err := s.run(ctx, OpListArchived, func(context.Context) (string, error) {
		out = s.store.ListArchived()
		return "", nil
	})
	return out, err
}
