package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/database"
	"github.com/dzerrenner/mqtt-lightify/migrations"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.HistoryConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecordAndRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{DeviceID: "7", Datapoint: "LUM", Payload: "150", Value: "100", Outcome: OutcomeClamped, CreatedAt: base},
		{DeviceID: "7", Datapoint: "RGB", Payload: "12345", Outcome: OutcomeInvalidFormat, CreatedAt: base.Add(time.Second)},
		{DeviceID: "8", Datapoint: "STATE", Payload: "true", Value: "true", Outcome: OutcomeApplied, CreatedAt: base.Add(2 * time.Second)},
		{DeviceID: "7", Datapoint: "STATE", Payload: "1", Value: "true", Outcome: OutcomeApplied, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.Recent(ctx, "7", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() len = %d, want 3", len(got))
	}

	wantOrder := []string{"STATE", "RGB", "LUM"}
	for i, dp := range wantOrder {
		if got[i].Datapoint != dp {
			t.Errorf("Recent()[%d].Datapoint = %s, want %s", i, got[i].Datapoint, dp)
		}
	}
	if !got[2].CreatedAt.Equal(base) || got[2].Value != "100" || got[2].Outcome != OutcomeClamped {
		t.Errorf("oldest entry = %+v", got[2])
	}
	if got[0].ID == 0 {
		t.Error("entry ID not populated")
	}

	limited, err := repo.Recent(ctx, "7", 1)
	if err != nil {
		t.Fatalf("Recent(limit=1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].Datapoint != "STATE" {
		t.Errorf("Recent(limit=1) = %+v", limited)
	}

	none, err := repo.Recent(ctx, "99", 10)
	if err != nil {
		t.Fatalf("Recent(unknown) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Recent(unknown) len = %d, want 0", len(none))
	}
}

func TestRecord_Validation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing device", Entry{Datapoint: "LUM", Outcome: OutcomeApplied}},
		{"missing outcome", Entry{DeviceID: "1", Datapoint: "LUM"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Record(ctx, tt.entry); err == nil {
				t.Error("Record() error = nil, want error")
			}
		})
	}

	if _, err := repo.Recent(ctx, "", 10); err == nil {
		t.Error("Recent(\"\") error = nil, want error")
	}
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	repo := newTestRepository(t)
	fixed := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	if err := repo.Record(context.Background(), Entry{DeviceID: "1", Datapoint: "TEMP", Outcome: OutcomeApplied}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := repo.Recent(context.Background(), "1", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent() = %v, %v", got, err)
	}
	if !got[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, fixed)
	}
}

func TestPrune(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	for _, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		e := Entry{DeviceID: "1", Datapoint: "LUM", Outcome: OutcomeApplied, CreatedAt: now.Add(-age)}
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) error = nil, want error")
	}
}
