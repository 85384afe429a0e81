package core

import (
	"caseledger/pkg/domain"
	"context"
	"time"
)

// Logger is the structured logging contract used by the service. Arguments
// are alternating key/value pairs, as with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus reports the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one audited mutation.
type AuditEntry struct {
	Operation string            `json:"operation"`
	Entity    domain.EntityType `json:"entity"`
	Action    domain.Action     `json:"action"`
	EntityID  string            `json:"entityId,omitempty"`
	Status    AuditStatus       `json:"status"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes the outcome and latency of every operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around every operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ClockFunc supplies the current time. A nil ClockFunc falls back to time.Now.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (c ClockFunc) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Operation names reported to loggers, metrics, tracers and audit recorders.
const (
	OpCreateTestCase  = "create_test_case"
	OpGetTestCase     = "get_test_case"
	OpUpdateTestCase  = "update_test_case"
	OpListTestCases   = "list_test_cases"
	OpArchiveTestCase = "archive_test_case"
	OpRecordExecution = "record_execution"
	OpSummary         = "summary"
	OpRevisions       = "list_revisions"
	OpListArchived    = "list_archived"
)

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// auditedOperations lists the mutations that produce audit entries.
var auditedOperations = map[string]operationMeta{
	OpCreateTestCase:  {entity: domain.EntityTestCase, action: domain.ActionCreate},
	OpUpdateTestCase:  {entity: domain.EntityTestCase, action: domain.ActionUpdate},
	OpRecordExecution: {entity: domain.EntityTestCase, action: domain.ActionUpdate},
	OpArchiveTestCase: {entity: domain.EntityTestCase, action: domain.ActionArchive},
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
