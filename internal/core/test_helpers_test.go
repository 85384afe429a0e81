package core

import (
	"caseledger/pkg/domain"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedClock() ClockFunc {
	return func() time.Time { return fixedNow }
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf("%s:%s %v", level, msg, args))
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("d", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("i", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("w", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("e", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if len(c) > len(level) && c[:len(level)+1] == level+":" {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewInMemoryService(domain.NewDefaultRulesEngine(), opts...)
}

func loginCase() TestCase {
	return TestCase{
		ID:             "TC001",
		Title:          "Login success",
		Preconditions:  "user alice exists",
		Steps:          []string{"open /login", "enter alice/secret", "submit"},
		TestData:       domain.TestData{Values: map[string]string{"username": "alice", "password": "secret"}},
		ExpectedResult: "redirect to dashboard",
	}
}

func mustCreate(t *testing.T, svc *Service, tc TestCase) TestCase {
	t.Helper()
	created, _, err := svc.CreateTestCase(context.Background(), tc)
	if err != nil {
		t.Fatalf("create %s: %v", tc.ID, err)
	}
	return created
}

func collectIDs(t *testing.T, svc *Service, filter Filter) []string {
	t.Helper()
	seq, err := svc.ListTestCases(context.Background(), filter)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for tc := range seq {
		ids = append(ids, tc.ID)
	}
	return ids
}
