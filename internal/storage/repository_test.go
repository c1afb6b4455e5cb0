package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "gmv.db"), WithShardWriters(3))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func strp(s string) *string { return &s }
func intp(v int) *int       { return &v }

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmv.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	v, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != 2 || dirty {
		t.Fatalf("expected clean version 2, got %d dirty=%v", v, dirty)
	}
	// Running again is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
}

func TestLoadAndReadSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2017, 10, 2, 10, 56, 33, 0, time.UTC)

	in := core.Snapshot{
		Orders: []core.Order{
			{OrderID: "o1", CustomerID: "c1", Status: "delivered", PurchaseTS: &ts},
			{OrderID: "o2", CustomerID: "c2", Status: "canceled", Year: 2017, Month: 11},
		},
		Items: []core.OrderItem{
			{OrderID: "o1", ItemSeq: 1, ProductID: "p1", Price: 29.99, FreightValue: 8.72},
		},
		Products:  []core.Product{{ProductID: "p1", CategoryName: strp("housewares")}, {ProductID: "p2"}},
		Payments:  []core.Payment{{OrderID: "o1", Sequential: 1, PaymentType: strp("boleto"), Installments: intp(1)}},
		Reviews:   []core.Review{{ReviewID: "r1", OrderID: "o1", Score: intp(5)}},
		Customers: []core.Customer{{CustomerID: "c1", State: strp("SP")}},
	}
	if err := repo.LoadSnapshot(ctx, in); err != nil {
		t.Fatalf("load: %v", err)
	}

	got, err := repo.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Orders) != 2 || got.Orders[0].PurchaseTS == nil || !got.Orders[0].PurchaseTS.Equal(ts) {
		t.Fatalf("unexpected orders: %+v", got.Orders)
	}
	if got.Orders[1].Year != 2017 || got.Orders[1].Month != 11 || got.Orders[1].PurchaseTS != nil {
		t.Fatalf("unexpected second order: %+v", got.Orders[1])
	}
	if got.Items[0].Price != 29.99 || got.Items[0].FreightValue != 8.72 {
		t.Fatalf("unexpected item: %+v", got.Items[0])
	}
	if got.Products[1].CategoryName != nil {
		t.Fatalf("null category should survive the round trip")
	}
	if p := got.Payments[0]; p.Value != nil || *p.PaymentType != "boleto" || *p.Installments != 1 {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if r := got.Reviews[0]; r.CreationTS != nil || *r.Score != 5 {
		t.Fatalf("unexpected review: %+v", r)
	}

	// Loading twice upserts instead of duplicating.
	if err := repo.LoadSnapshot(ctx, in); err != nil {
		t.Fatalf("reload: %v", err)
	}
	again, _ := repo.ReadSnapshot(ctx)
	if len(again.Orders) != 2 || len(again.Items) != 1 {
		t.Fatalf("reload duplicated rows: %d orders, %d items", len(again.Orders), len(again.Items))
	}
}

func TestReadSnapshotClosedDatabase(t *testing.T) {
	repo := newTestRepo(t)
	repo.Close()
	if _, err := repo.ReadSnapshot(context.Background()); !errors.Is(err, core.ErrInputUnavailable) {
		t.Fatalf("expected ErrInputUnavailable, got %v", err)
	}
}

func TestWriteFactsReplacesShards(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	jan := core.Month{Year: 2017, Month: 1}
	feb := core.Month{Year: 2017, Month: 2}

	late := true
	first := []core.OrderFact{
		{OrderID: "a", CustomerID: "c1", MainCategory: "toys", AmountNet: 10, AmountGross: 12, Freight: 2, ItemsPerOrder: 1, DistinctSKUs: 1, Year: 2017, Month: 1, DeliveredLate: &late},
		{OrderID: "b", CustomerID: "c2", MainCategory: "books", AmountNet: 5, AmountGross: 5, ItemsPerOrder: 1, DistinctSKUs: 1, Year: 2017, Month: 1},
		{OrderID: "c", CustomerID: "c3", MainCategory: "books", AmountNet: 7, AmountGross: 7, ItemsPerOrder: 2, DistinctSKUs: 1, Year: 2017, Month: 2, ReviewScore: intp(4)},
	}
	if err := repo.WriteFacts(ctx, report.Run{ID: "run-1"}, first); err != nil {
		t.Fatalf("write facts: %v", err)
	}

	second := []core.OrderFact{
		{OrderID: "d", CustomerID: "c4", MainCategory: "garden", AmountNet: 3, AmountGross: 3, ItemsPerOrder: 1, DistinctSKUs: 1, Year: 2017, Month: 1},
	}
	if err := repo.WriteFacts(ctx, report.Run{ID: "run-2"}, second); err != nil {
		t.Fatalf("rewrite facts: %v", err)
	}

	janFacts, err := repo.ReadFacts(ctx, jan)
	if err != nil {
		t.Fatalf("read jan: %v", err)
	}
	if len(janFacts) != 1 || janFacts[0].OrderID != "d" {
		t.Fatalf("january shard should be replaced: %+v", janFacts)
	}
	febFacts, err := repo.ReadFacts(ctx, feb)
	if err != nil {
		t.Fatalf("read feb: %v", err)
	}
	if len(febFacts) != 1 || febFacts[0].ReviewScore == nil || *febFacts[0].ReviewScore != 4 {
		t.Fatalf("february shard should be untouched: %+v", febFacts)
	}
	if febFacts[0].DeliveredLate != nil || febFacts[0].CustomerState != nil {
		t.Fatalf("nulls should round trip: %+v", febFacts[0])
	}
}

func TestWriteWaterfallAndDrilldown(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	feb := core.Month{Year: 2017, Month: 2}
	run := report.Run{ID: "run-1", StartedAt: time.Now()}

	steps := []core.WaterfallStep{
		{Family: core.FamilyVolumeAOV, Month: feb, MonthIndex: 1, SortInMonth: 0, SortKey: 10, Kind: core.StepStart, Stage: "Start GMV", Component: "start", Amount: 100, IsTotal: true},
		{Family: core.FamilyVolumeAOV, Month: feb, MonthIndex: 1, SortInMonth: 1, SortKey: 11, Kind: core.StepEffect, Stage: "Orders", Component: "orders", Amount: 20},
		{Family: core.FamilyMixLFL, Dimension: core.StateDimension, Month: feb, MonthIndex: 1, SortKey: 10, Kind: core.StepStart, Stage: "Start AOV", Component: "start", Amount: 50, IsTotal: true},
	}
	if err := repo.WriteWaterfall(ctx, run, steps); err != nil {
		t.Fatalf("write waterfall: %v", err)
	}
	if err := repo.WriteWaterfall(ctx, run, steps); err != nil {
		t.Fatalf("rewrite waterfall: %v", err)
	}
	rows, err := repo.ReadSteps(ctx, feb)
	if err != nil {
		t.Fatalf("read steps: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows after rewrite, got %d", len(rows))
	}
	if rows[0].Family != string(core.FamilyMixLFL) || rows[0].Dimension != "state" || !rows[0].IsTotal {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}

	d := report.Drilldown{
		Dimension: core.CategoryDimension,
		Metric:    core.MetricUnitPrice,
		MonthA:    core.Month{Year: 2017, Month: 1},
		MonthB:    feb,
		Rows: []core.DrilldownRow{
			{Segment: "toys", MetricA: 10, MetricB: 15, Delta: 5, AbsDelta: 5, PctChange: core.Float(0.5)},
			{Segment: "free", MetricA: 0, MetricB: 2, Delta: 2, AbsDelta: 2},
		},
	}
	if err := repo.WriteDrilldown(ctx, run, d); err != nil {
		t.Fatalf("write drilldown: %v", err)
	}
	got, err := repo.ReadDrilldown(ctx, d.Dimension, d.Metric, d.MonthA, d.MonthB)
	if err != nil {
		t.Fatalf("read drilldown: %v", err)
	}
	if len(got) != 2 || got[0].Segment != "toys" || *got[0].PctChange != 0.5 || got[1].PctChange != nil {
		t.Fatalf("unexpected drilldown: %+v", got)
	}

	if err := repo.RecordRun(ctx, report.Summary{Run: run, FinishedAt: time.Now(), Steps: 3, DrilldownRows: 2}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if n, err := repo.CountRuns(ctx); err != nil || n != 1 {
		t.Fatalf("expected one run, got %d (%v)", n, err)
	}
}

func TestWriteFactsHonoursCancellation(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.WriteFacts(ctx, report.Run{ID: "r"}, []core.OrderFact{{OrderID: "a", Year: 2017, Month: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriteFactsKeepsUnknownMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	facts := []core.OrderFact{
		{OrderID: "a", CustomerID: "c1", MainCategory: "toys", AmountNet: 10, AmountGross: 10, ItemsPerOrder: 1, DistinctSKUs: 1, Year: 2017, Month: 1},
		{OrderID: "b", CustomerID: "c2", MainCategory: "books", AmountNet: 4, AmountGross: 4, ItemsPerOrder: 1, DistinctSKUs: 1},
	}
	if err := repo.WriteFacts(ctx, report.Run{ID: "run-1"}, facts); err != nil {
		t.Fatalf("write facts: %v", err)
	}
	got, err := repo.ReadFacts(ctx, report.UnknownMonth)
	if err != nil {
		t.Fatalf("read unknown shard: %v", err)
	}
	if len(got) != 1 || got[0].OrderID != "b" {
		t.Fatalf("unknown shard = %+v", got)
	}
}
