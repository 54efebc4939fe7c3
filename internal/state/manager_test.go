package state

import (
	"context"
	"testing"
	"time"

	"supertrend-core/pkg/db"
)

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestLoadRestoresPersistedPosition(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	opened := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	want := Position{
		Symbol: "NIFTY", Side: SideShort, Contract: "NIFTY 24500 PE", EntryPrice: 24510,
		Qty: 10, StopLoss: 31863, TrailingStop: 31863, EntryOrderID: "o-1", OpenedAt: opened,
	}
	if err := database.UpsertPosition(ctx, want.Row()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	m := NewManager(database)
	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 position, got %d", len(got))
	}
	p := m.Position("NIFTY")
	if p == nil {
		t.Fatal("position not in memory")
	}
	if p.Side != SideShort || p.EntryPrice != 24510 || !p.OpenedAt.Equal(opened) {
		t.Fatalf("unexpected position %+v", *p)
	}
}

func TestPositionReturnsCopy(t *testing.T) {
	m := NewManager(nil)
	m.Apply(Position{Symbol: "NIFTY", Side: SideLong, EntryPrice: 100})
	p := m.Position("NIFTY")
	p.EntryPrice = 1
	if m.Position("NIFTY").EntryPrice != 100 {
		t.Fatal("caller mutated manager state")
	}
	m.Remove("NIFTY")
	if m.Position("NIFTY") != nil {
		t.Fatal("position should be gone")
	}
}

func TestUpdateTrailingStopPersists(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	m := NewManager(database)
	p := Position{Symbol: "NIFTY", Side: SideLong, EntryPrice: 100, Qty: 1, StopLoss: 90, TrailingStop: 90, EntryOrderID: "o", OpenedAt: time.Now()}
	if err := database.UpsertPosition(ctx, p.Row()); err != nil {
		t.Fatal(err)
	}
	m.Apply(p)

	if err := m.UpdateTrailingStop(ctx, "NIFTY", 99); err != nil {
		t.Fatal(err)
	}
	rows, err := database.ListPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TrailingStop != 99 || rows[0].StopLoss != 90 {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if err := m.UpdateTrailingStop(ctx, "BANKNIFTY", 1); err != nil {
		t.Fatalf("unknown symbol should be a no-op: %v", err)
	}
}
