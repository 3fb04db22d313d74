package adapter

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

func newTestStore(t *testing.T) *MetricsStore {
	t.Helper()
	store := NewMetricsStore(filepath.Join(t.TempDir(), "data", "business_data.db"))
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMetricsStore_Connect(t *testing.T) {
	store := newTestStore(t)
	if !store.Ready() {
		t.Error("store should be ready after Connect")
	}
}

func TestMetricsStore_SnapshotEmpty(t *testing.T) {
	store := newTestStore(t)

	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	m, err := store.Snapshot(context.Background(), day)
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if m.SalesCount != 0 || m.Revenue != 0 || m.TicketsResolved != 0 {
		t.Errorf("empty snapshot = %+v, want zeros", m)
	}
	if !m.AsOf.Equal(day) {
		t.Errorf("AsOf = %v, want %v", m.AsOf, day)
	}
}

func TestMetricsStore_SnapshotSeeded(t *testing.T) {
	store := newTestStore(t)
	day := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	if err := store.Seed(context.Background(), day); err != nil {
		t.Fatalf("Seed error: %v", err)
	}

	m, err := store.Snapshot(context.Background(), day)
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if m.SalesCount != 45 {
		t.Errorf("SalesCount = %d, want 45", m.SalesCount)
	}
	if math.Abs(m.Revenue-45*266.67) > 0.01 {
		t.Errorf("Revenue = %v, want %v", m.Revenue, 45*266.67)
	}
	if m.TicketsResolved != 3 {
		t.Errorf("TicketsResolved = %d, want 3", m.TicketsResolved)
	}
}

func TestMetricsStore_SnapshotDayBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO sales (amount, product, customer, created_at) VALUES (100, 'p', 'c', '2025-06-15 23:59:59')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO sales (amount, product, customer, created_at) VALUES (200, 'p', 'c', '2025-06-16 00:00:01')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	m, err := store.Snapshot(ctx, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if m.SalesCount != 1 || m.Revenue != 100 {
		t.Errorf("snapshot = %+v, want 1 sale for $100", m)
	}
}

func TestMetricsStore_WeeklyTrends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	twoDaysAgo := time.Now().AddDate(0, 0, -2)
	if err := store.Seed(ctx, yesterday); err != nil {
		t.Fatalf("Seed error: %v", err)
	}
	if err := store.Seed(ctx, twoDaysAgo); err != nil {
		t.Fatalf("Seed error: %v", err)
	}

	trends, err := store.WeeklyTrends(ctx)
	if err != nil {
		t.Fatalf("WeeklyTrends error: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("trends = %d days, want 2", len(trends))
	}
	// Sorted ascending by date.
	if trends[0].Date != twoDaysAgo.Format(dayLayout) {
		t.Errorf("trends[0].Date = %q, want %q", trends[0].Date, twoDaysAgo.Format(dayLayout))
	}
	if trends[1].Sales != 45 {
		t.Errorf("trends[1].Sales = %d, want 45", trends[1].Sales)
	}
}

func TestMetricsStore_NotConnected(t *testing.T) {
	store := NewMetricsStore(filepath.Join(t.TempDir(), "x.db"))
	_, err := store.Snapshot(context.Background(), time.Now())
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Errorf("error type = %T, want *QueryError", err)
	}
}

func TestMetricsStore_CloseIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if store.Ready() {
		t.Error("store should not be ready after Close")
	}
}

func TestMetricsStore_RegisterTools(t *testing.T) {
	store := newTestStore(t)
	reg := registry.New()
	if err := store.RegisterTools(reg); err != nil {
		t.Fatalf("RegisterTools error: %v", err)
	}

	names := reg.Names()
	want := []string{"get_weekly_trends", "get_yesterday_metrics"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("Names() = %v, want %v", names, want)
	}

	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if err := store.Seed(context.Background(), day); err != nil {
		t.Fatalf("Seed error: %v", err)
	}
	got, err := reg.Invoke(context.Background(), "get_yesterday_metrics", day)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	m, ok := got.(report.Metrics)
	if !ok {
		t.Fatalf("Invoke result type = %T, want report.Metrics", got)
	}
	if m.SalesCount != 45 {
		t.Errorf("SalesCount = %d, want 45", m.SalesCount)
	}
}
