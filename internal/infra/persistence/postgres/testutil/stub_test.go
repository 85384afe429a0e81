package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestStubDBUpsertsAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{"first", "second"} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "records"}, {Value: []byte(payload)}}); err != nil {
			t.Fatalf("ExecContext: %v", err)
		}
	}
	rows := conn.Rows("state")
	if len(rows) != 1 || string(rows[0]["payload"].([]byte)) != "second" {
		t.Fatalf("expected upsert to replace row, got %v", rows)
	}

	result, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = result.Close() }()
	dest := make([]driver.Value, 2)
	if err := result.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "records" {
		t.Fatalf("unexpected row values: %v", dest)
	}
}

func TestStubDBFailureSwitches(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailCommit = true
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	if _, err := conn.QueryContext(ctx, "DELETE FROM state", nil); err == nil {
		t.Fatalf("expected parse error for non-select query")
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO broken VALUES", nil); err == nil {
		t.Fatalf("expected parse error for malformed insert")
	}
	conn.RowsErr = errors.New("rows broke")
	rows, err := conn.QueryContext(ctx, "SELECT bucket FROM state", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := rows.Next(make([]driver.Value, 1)); err == nil || err.Error() != "rows broke" {
		t.Fatalf("expected rows error, got %v", err)
	}
}
