package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestStore(t *testing.T) domain.HistoryStore {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := New(domain.HistoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testRecord(prob float64) *domain.HistoryRecord {
	p := prob
	return &domain.HistoryRecord{
		Timestamp:           time.Now().UTC(),
		Income:              8000,
		Age:                 35,
		RequestedAmount:     50000,
		CollateralValue:     80000,
		CollateralLiquidity: domain.LiquidityHigh,
		Probability:         &p,
		Approved:            domain.LabelApproved,
		Message:             "ok",
	}
}

func TestAppendThenReadAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(0.62)
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}

	got := records[0]
	if got.Income != rec.Income || got.Age != rec.Age {
		t.Errorf("applicant fields mismatch: %+v", got)
	}
	if got.Probability == nil || *got.Probability != 0.62 {
		t.Errorf("expected probability 0.62, got %v", got.Probability)
	}
	if got.Approved != domain.LabelApproved {
		t.Errorf("expected label %q, got %q", domain.LabelApproved, got.Approved)
	}
	if got.CollateralLiquidity != domain.LiquidityHigh {
		t.Errorf("expected liquidity high, got %q", got.CollateralLiquidity)
	}
}

func TestReadAllEmptyStore(t *testing.T) {
	store := newTestStore(t)

	records, err := store.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty slice, got %d records", len(records))
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := testRecord(float64(i) / 10)
		rec.Age = 20 + i
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Age != 20+i {
			t.Errorf("record %d out of order: age %d", i, rec.Age)
		}
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Clearing an empty store is a no-op, not an error.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear on empty store failed: %v", err)
	}

	if err := store.Append(ctx, testRecord(0.8)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty log after clear, got %d records", len(records))
	}

	// Idempotent.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestNilProbabilityRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(0)
	rec.Probability = nil
	rec.Approved = domain.LabelDenied
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if records[0].Probability != nil {
		t.Errorf("expected nil probability, got %v", *records[0].Probability)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord(float64(i%10) / 10)
			if err := store.Append(ctx, rec); err != nil {
				errs <- fmt.Errorf("append %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}

	// Positions allocated under the lock are strictly increasing.
	for i := 1; i < len(records); i++ {
		if records[i].ID <= records[i-1].ID {
			t.Errorf("positions not strictly increasing at %d: %d <= %d", i, records[i].ID, records[i-1].ID)
		}
	}
}

func TestAppendNilRecord(t *testing.T) {
	store := newTestStore(t)

	if err := store.Append(context.Background(), nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.HistoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSchemaMismatchResetsLog(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-mismatch-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	// Seed a history table with the wrong shape, as a prior incompatible
	// version of the service would leave behind.
	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		t.Fatalf("failed to open seed database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE history (old_field TEXT)`); err != nil {
		t.Fatalf("failed to seed mismatched table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO history (old_field) VALUES ('stale')`); err != nil {
		t.Fatalf("failed to insert seed row: %v", err)
	}
	db.Close()

	store, err := New(domain.HistoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("mismatched schema should reset, not fail startup: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll after reset failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("reset log should be empty, got %d records", len(records))
	}

	if err := store.Append(ctx, testRecord(0.5)); err != nil {
		t.Errorf("Append into reset log failed: %v", err)
	}
}
