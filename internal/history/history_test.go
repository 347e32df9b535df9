package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &Run{
			RunID:    fmt.Sprintf("run-%d", i),
			Brand:    "acme",
			File:     "orders.sql",
			Username: "ops",
			Outcome:  "success",
			Rows:     i,
		}
		if err := s.Record(ctx, run); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if run.ID == 0 {
			t.Error("expected auto-increment id to be set")
		}
	}

	runs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Errorf("expected newest first, got %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be filled")
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openTestStore(t)
	runs, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty history, got %d", len(runs))
	}
}

func TestRecordDuplicateRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, &Run{RunID: "same", Outcome: "success"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, &Run{RunID: "same", Outcome: "timeout"}); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestReopenKeepsRows(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(dsn, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), &Run{RunID: "persisted", Outcome: "sql_error"}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s2, err := Open(dsn, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	runs, err := s2.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Outcome != "sql_error" {
		t.Errorf("unexpected runs after reopen: %+v", runs)
	}
}
