package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver:  "sqlite",
		URL:     filepath.Join(t.TempDir(), "zerofail.db"),
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", URL: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestDeliveryRepo_SQLite(t *testing.T) {
	ctx := context.Background()
	repo := NewDeliveryRepo(openTestDB(t))

	records := []*domain.DeliveryRecord{
		{ID: "a", RequestID: "r1", Class: "prose", ServiceTier: "standard", Source: "tier-0", Provider: "claude", Attempts: 1, Score: 0.9, LatencyMs: 200, CreatedAt: 1000},
		{ID: "b", RequestID: "r2", Class: "prose", ServiceTier: "premium", Source: "tier-0", Provider: "claude", Attempts: 2, Failures: 1, Score: 0.7, LatencyMs: 400, SLAViolated: true, CreatedAt: 2000},
		{ID: "c", RequestID: "r3", Class: "code", ServiceTier: "standard", Source: "template", Provider: "template", Degraded: "all-tiers-exhausted", Score: 0.5, LatencyMs: 10, CreatedAt: 3000},
	}
	for _, r := range records {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s): %v", r.ID, err)
		}
	}

	// upsert
	records[0].Score = 0.95
	if err := repo.Save(ctx, records[0]); err != nil {
		t.Fatalf("re-Save: %v", err)
	}

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Score != 0.95 || got.Provider != "claude" {
		t.Errorf("Get(a) = %+v", got)
	}
	got, _ = repo.Get(ctx, "b")
	if !got.SLAViolated || got.Failures != 1 {
		t.Errorf("Get(b) = %+v", got)
	}
	if _, err := repo.Get(ctx, "zzz"); !errors.Is(err, storage.ErrRecordNotFound) {
		t.Errorf("Get(missing) err = %v", err)
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil || len(recent) != 2 || recent[0].ID != "c" {
		t.Errorf("Recent = %v, %v", recent, err)
	}

	summary, err := repo.SummaryBySource(ctx, 0)
	if err != nil {
		t.Fatalf("SummaryBySource: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	tier0 := summary[1]
	if tier0.Source != "tier-0" || tier0.Count != 2 || tier0.AvgLatencyMs != 300 || tier0.Violations != 1 {
		t.Errorf("tier-0 summary = %+v", tier0)
	}

	n, err := repo.DeleteOlderThan(ctx, 2500)
	if err != nil || n != 2 {
		t.Errorf("DeleteOlderThan = %d, %v", n, err)
	}
}

func TestSignalRepo_SQLite(t *testing.T) {
	ctx := context.Background()
	repo := NewSignalRepo(openTestDB(t))

	base := time.UnixMilli(1_700_000_000_000)
	for i, kind := range []domain.SignalKind{domain.SignalTemplateRate, domain.SignalSLAViolation} {
		err := repo.SaveSignal(ctx, domain.EscalationSignal{
			Kind:        kind,
			ServiceTier: domain.ServicePremium,
			Value:       0.3,
			Threshold:   0.1,
			Samples:     40,
			Message:     "drift",
			RaisedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
	}

	got, err := repo.RecentSignals(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(got) != 2 || got[0].Kind != domain.SignalSLAViolation || !got[1].RaisedAt.Equal(base) {
		t.Errorf("RecentSignals = %+v", got)
	}
}
