package repository

import (
	"context"
	"testing"
	"time"

	"github.com/msf-usa/chatd/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndReadTurns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	start := time.Now().Add(-2 * time.Second).UTC().Truncate(time.Millisecond)
	rec := domain.TurnRecord{
		RequestID: "r1",
		UserID:    "u1",
		Model:     "gpt-4o",
		Strategy:  domain.ExecutionStandard,
		StartedAt: start,
		EndedAt:   start.Add(1200 * time.Millisecond),
		StageDurations: map[string]time.Duration{
			"file_processor":    300 * time.Millisecond,
			"standard_executor": 900 * time.Millisecond,
		},
		Errors: []string{"stage tool_router: search down"},
	}
	if err := store.RecordTurn(ctx, rec); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	turns, err := store.RecentTurns(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	got := turns[0]
	if got.RequestID != "r1" || got.Model != "gpt-4o" || got.Strategy != domain.ExecutionStandard {
		t.Fatalf("unexpected turn: %+v", got)
	}
	if got.StageDurations["standard_executor"] != 900*time.Millisecond {
		t.Fatalf("stage durations lost: %+v", got.StageDurations)
	}
	if len(got.Errors) != 1 {
		t.Fatalf("errors lost: %+v", got.Errors)
	}
}

func TestRecentTurnsScopedToUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	for i, user := range []string{"u1", "u2", "u1"} {
		rec := domain.TurnRecord{
			RequestID:      "r",
			UserID:         user,
			Model:          "gpt-4o",
			Strategy:       domain.ExecutionStandard,
			StartedAt:      now.Add(time.Duration(i) * time.Second),
			EndedAt:        now.Add(time.Duration(i+1) * time.Second),
			StageDurations: map[string]time.Duration{},
		}
		if err := store.RecordTurn(ctx, rec); err != nil {
			t.Fatalf("RecordTurn failed: %v", err)
		}
	}

	turns, err := store.RecentTurns(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns for u1, got %d", len(turns))
	}
}
