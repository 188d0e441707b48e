package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecordStateChange(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	state := State{"is_on": true, "brightness": float64(128)}
	if err := repo.RecordStateChange(ctx, "light.l1", "L1", state, StateHistorySourcePoll); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "L1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.EntityID != "light.l1" || entry.DeviceID != "L1" {
		t.Errorf("entry ids = %q/%q", entry.EntityID, entry.DeviceID)
	}
	if entry.Source != StateHistorySourcePoll {
		t.Errorf("Source = %q", entry.Source)
	}
	if entry.State["is_on"] != true || entry.State["brightness"] != float64(128) {
		t.Errorf("State = %v", entry.State)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestRecordStateChange_DefaultsSource(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "sensor.p1-voltage", "P1", nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	entries, err := repo.GetHistory(ctx, "P1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != StateHistorySourcePoll {
		t.Errorf("entries = %+v", entries)
	}
}

func TestGetHistory_NewestFirstAndLimit(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	for i := range 5 {
		if err := repo.RecordStateChange(ctx, "light.l1", "L1", State{"seq": float64(i)}, StateHistorySourceCommand); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "L1", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries length = %d, want 3", len(entries))
	}
	if entries[0].State["seq"] != float64(4) || entries[2].State["seq"] != float64(2) {
		t.Errorf("order = %v, %v, %v", entries[0].State, entries[1].State, entries[2].State)
	}
}

func TestStateHistory_InvalidArguments(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", "L1", State{}, ""); !errors.Is(err, ErrInvalidHistory) {
		t.Errorf("RecordStateChange(no entity) error = %v", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrInvalidHistory) {
		t.Errorf("GetHistory(no device) error = %v", err)
	}
	if _, err := repo.PruneHistory(ctx, 0); !errors.Is(err, ErrInvalidHistory) {
		t.Errorf("PruneHistory(0) error = %v", err)
	}
}

func TestPruneHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02T15:04:05.000Z")
	if _, err := db.Exec(
		"INSERT INTO state_history (entity_id, device_id, state, source, created_at) VALUES (?, ?, ?, ?, ?)",
		"light.l1", "L1", `{"is_on":false}`, StateHistorySourcePoll, old,
	); err != nil {
		t.Fatalf("inserting old row: %v", err)
	}
	if err := repo.RecordStateChange(ctx, "light.l1", "L1", State{"is_on": true}, StateHistorySourcePoll); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	removed, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	entries, err := repo.GetHistory(ctx, "L1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].State["is_on"] != true {
		t.Errorf("remaining = %+v", entries)
	}
}
