package parquet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

var (
	oct = core.Month{Year: 2017, Month: 10}
	nov = core.Month{Year: 2017, Month: 11}
)

func readRows[T any](t *testing.T, path string) []T {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		t.Fatalf("parquet reader: %v", err)
	}
	defer pr.ReadStop()
	rows := make([]T, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func fact(id string, m core.Month, net float64) core.OrderFact {
	return core.OrderFact{
		OrderID:       id,
		CustomerID:    "c-" + id,
		MainCategory:  "toys",
		AmountNet:     net,
		AmountGross:   net + 5,
		Freight:       5,
		ItemsPerOrder: 1,
		DistinctSKUs:  1,
		Year:          m.Year,
		Month:         m.Month,
	}
}

func TestWriteFactsPartitionsByMonth(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir, 2, nil)
	run := report.Run{ID: "run-1"}

	purchased := time.Date(2017, 11, 3, 10, 0, 0, 0, time.UTC)
	state := "SP"
	score := 5
	withNulls := fact("o2", nov, 20)
	withNulls.PurchaseTS = &purchased
	withNulls.CustomerState = &state
	withNulls.ReviewScore = &score

	facts := []core.OrderFact{fact("o1", oct, 10), withNulls, fact("o3", nov, 30), {OrderID: "no-month"}}
	if err := sink.WriteFacts(context.Background(), run, facts); err != nil {
		t.Fatalf("WriteFacts: %v", err)
	}

	if got := readRows[factRow](t, sink.ShardPath(FactsDataset, oct)); len(got) != 1 || got[0].OrderID != "o1" {
		t.Fatalf("october shard = %+v", got)
	}
	got := readRows[factRow](t, sink.ShardPath(FactsDataset, nov))
	if len(got) != 2 || got[0].OrderID != "o2" || got[1].OrderID != "o3" {
		t.Fatalf("november shard = %+v", got)
	}
	r := got[0]
	if r.RunID != "run-1" || r.AmountGross != 25 || r.Year != 2017 || r.Month != 11 {
		t.Errorf("unexpected row: %+v", r)
	}
	if r.PurchaseTS == nil || *r.PurchaseTS != purchased.UnixMilli() {
		t.Errorf("purchase timestamp not kept: %v", r.PurchaseTS)
	}
	if r.CustomerState == nil || *r.CustomerState != "SP" || r.ReviewScore == nil || *r.ReviewScore != 5 {
		t.Errorf("optional columns not kept: %+v", r)
	}
	if got[1].CustomerState != nil || got[1].PaymentType != nil || got[1].DeliveredLate != nil {
		t.Errorf("null columns should read back as nil: %+v", got[1])
	}

	unknown := sink.ShardPath(FactsDataset, report.UnknownMonth)
	if filepath.Base(filepath.Dir(unknown)) != "month=unknown" {
		t.Fatalf("unknown shard path = %s", unknown)
	}
	if rows := readRows[factRow](t, unknown); len(rows) != 1 || rows[0].OrderID != "no-month" {
		t.Fatalf("unknown shard = %+v", rows)
	}
}

func TestWriteFactsReplacesMonth(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir, 1, nil)
	ctx := context.Background()

	if err := sink.WriteFacts(ctx, report.Run{ID: "a"}, []core.OrderFact{fact("o1", oct, 10), fact("o2", nov, 20), fact("o3", nov, 30)}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.WriteFacts(ctx, report.Run{ID: "b"}, []core.OrderFact{fact("o9", nov, 90)}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	novRows := readRows[factRow](t, sink.ShardPath(FactsDataset, nov))
	if len(novRows) != 1 || novRows[0].OrderID != "o9" || novRows[0].RunID != "b" {
		t.Fatalf("november should be replaced: %+v", novRows)
	}
	if octRows := readRows[factRow](t, sink.ShardPath(FactsDataset, oct)); len(octRows) != 1 || octRows[0].RunID != "a" {
		t.Fatalf("october should be untouched: %+v", octRows)
	}

	entries, err := os.ReadDir(filepath.Dir(sink.ShardPath(FactsDataset, nov)))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestWriteWaterfallAndDrilldown(t *testing.T) {
	sink := New(t.TempDir(), 4, nil)
	ctx := context.Background()
	run := report.Run{ID: "run-1"}

	steps := []core.WaterfallStep{
		{Family: core.FamilyVolumeAOV, Month: nov, MonthIndex: 1, SortInMonth: 0, SortKey: 10, Kind: core.StepStart, Stage: "gmv", Component: "start", Amount: 100, IsTotal: true},
		{Family: core.FamilyVolumeAOV, Month: nov, MonthIndex: 1, SortInMonth: 1, SortKey: 11, Kind: core.StepEffect, Stage: "gmv", Component: "orders", Amount: 20},
		{Family: core.FamilyVolumeAOV, Month: nov, MonthIndex: 1, SortInMonth: 4, SortKey: 14, Kind: core.StepEnd, Stage: "gmv", Component: "end", Amount: 120, IsTotal: true},
	}
	if err := sink.WriteWaterfall(ctx, run, steps); err != nil {
		t.Fatalf("WriteWaterfall: %v", err)
	}
	rows := readRows[stepRow](t, sink.ShardPath(WaterfallDataset, nov))
	if len(rows) != 3 || rows[1].Component != "orders" || rows[1].SortKey != 11 || !rows[2].IsTotal {
		t.Fatalf("waterfall rows = %+v", rows)
	}
	if rows[0].Family != string(core.FamilyVolumeAOV) || rows[0].Month != "2017-11" {
		t.Fatalf("unexpected step row: %+v", rows[0])
	}

	pct := 0.5
	d := report.Drilldown{
		Dimension: core.CategoryDimension,
		Metric:    core.MetricUnitPrice,
		MonthA:    oct,
		MonthB:    nov,
		Rows: []core.DrilldownRow{
			{Segment: "toys", MetricA: 10, MetricB: 15, Delta: 5, AbsDelta: 5, PctChange: &pct},
			{Segment: "books", MetricA: 0, MetricB: 2, Delta: 2, AbsDelta: 2},
		},
	}
	if err := sink.WriteDrilldown(ctx, run, d); err != nil {
		t.Fatalf("WriteDrilldown: %v", err)
	}
	path := sink.DrilldownPath(d.Dimension, d.Metric, oct, nov)
	if !strings.HasSuffix(path, filepath.Join("dimension=category", "metric=unit_price", "2017-10_2017-11.parquet")) {
		t.Fatalf("unexpected drilldown path: %s", path)
	}
	dd := readRows[drilldownRow](t, path)
	if len(dd) != 2 || dd[0].Rank != 1 || dd[0].Segment != "toys" || dd[1].Rank != 2 {
		t.Fatalf("drilldown rows = %+v", dd)
	}
	if dd[0].PctChange == nil || *dd[0].PctChange != 0.5 || dd[1].PctChange != nil {
		t.Fatalf("pct change not kept: %+v", dd)
	}
}

func TestWriteCanceled(t *testing.T) {
	sink := New(t.TempDir(), 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.WriteFacts(ctx, report.Run{}, []core.OrderFact{fact("o1", oct, 10)}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if err := sink.WriteDrilldown(ctx, report.Run{}, report.Drilldown{Dimension: core.CategoryDimension}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, err := os.Stat(sink.ShardPath(FactsDataset, oct)); !os.IsNotExist(err) {
		t.Fatalf("no shard should be written after cancel: %v", err)
	}
}
