// Package xlsx writes the outputs of a run into an analyst workbook.
//
// The workbook is rebuilt from buffered output on Flush: one sheet of order
// facts, one sheet per waterfall family and one sheet of drill-down rankings.
// Buffers keep the per-month replace semantics of the other sinks.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"gmvbridge/internal/core"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/report"
)

// Sheet names.
const (
	FactsSheet     = "Facts"
	DrilldownSheet = "Drilldown"
)

// FamilySheet returns the sheet holding a waterfall family.
func FamilySheet(f core.Family) string {
	switch f {
	case core.FamilyVolumeAOV:
		return "GMV Orders x AOV"
	case core.FamilyMixLFL:
		return "AOV Mix x LFL"
	case core.FamilyPriceBasket:
		return "AOV Price x Basket"
	}
	return string(f)
}

var (
	factsHeader = []interface{}{
		"year", "month", "order_id", "customer_id", "customer_state", "main_category",
		"payment_type", "payment_installments", "review_score", "amount_net", "amount_gross",
		"freight", "items_per_order", "distinct_skus", "delivery_days", "delivered_late",
	}
	stepsHeader = []interface{}{
		"month", "dimension", "month_index", "sort_in_month", "sort_key", "stage", "component", "amount", "is_total",
	}
	drilldownHeader = []interface{}{
		"dimension", "metric", "month_a", "month_b", "rank", "segment", "metric_a", "metric_b", "delta", "abs_delta", "pct_change",
	}
)

var (
	_ report.Writer  = (*Workbook)(nil)
	_ report.Flusher = (*Workbook)(nil)
)

// Workbook buffers a run's output and saves it to path on Flush.
type Workbook struct {
	path   string
	logger *applog.Logger

	mu         sync.Mutex
	run        report.Run
	facts      map[core.Month][]core.OrderFact
	steps      map[core.Month][]core.WaterfallStep
	drilldowns []report.Drilldown
}

func New(path string, logger *applog.Logger) *Workbook {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Workbook{
		path:   path,
		logger: logger.WithComponent(applog.ComponentReport),
		facts:  make(map[core.Month][]core.OrderFact),
		steps:  make(map[core.Month][]core.WaterfallStep),
	}
}

func (w *Workbook) WriteFacts(_ context.Context, run report.Run, facts []core.OrderFact) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run = run
	for m, shard := range report.ShardFacts(facts) {
		w.facts[m] = shard
	}
	return nil
}

func (w *Workbook) WriteWaterfall(_ context.Context, run report.Run, steps []core.WaterfallStep) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run = run
	for m, shard := range report.ShardSteps(steps) {
		w.steps[m] = shard
	}
	return nil
}

func (w *Workbook) WriteDrilldown(_ context.Context, run report.Run, d report.Drilldown) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run = run
	for i, old := range w.drilldowns {
		if old.Dimension == d.Dimension && old.Metric == d.Metric && old.MonthA == d.MonthA && old.MonthB == d.MonthB {
			w.drilldowns[i] = d
			return nil
		}
	}
	w.drilldowns = append(w.drilldowns, d)
	return nil
}

// Flush renders the buffered output and saves the workbook, replacing any
// file already at the path.
func (w *Workbook) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	total, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create total style: %w", err)
	}

	if err := w.writeFacts(f, header); err != nil {
		return err
	}
	for _, fam := range core.Families() {
		if err := w.writeFamily(f, fam, header, total); err != nil {
			return err
		}
	}
	if err := w.writeDrilldowns(f, header); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(FactsSheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "GMV bridge",
		Description: "run " + w.run.ID,
		Creator:     "gmvbridge",
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	w.logger.InfoContext(ctx, "Workbook saved",
		applog.FieldPath, w.path,
		applog.FieldRunID, w.run.ID,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

func (w *Workbook) writeFacts(f *excelize.File, header int) error {
	if _, err := f.NewSheet(FactsSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", FactsSheet, err)
	}
	sw, err := f.NewStreamWriter(FactsSheet)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", FactsSheet, err)
	}
	if err := sw.SetRow("A1", factsHeader, excelize.RowOpts{StyleID: header}); err != nil {
		return fmt.Errorf("write facts header: %w", err)
	}
	row := 2
	for _, m := range report.SortedMonths(w.facts) {
		for _, fact := range w.facts[m] {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []interface{}{
				m.Year, m.Month, fact.OrderID, fact.CustomerID, str(fact.CustomerState), fact.MainCategory,
				str(fact.PaymentType), integer(fact.PaymentInstallments), integer(fact.ReviewScore),
				fact.AmountNet, fact.AmountGross, fact.Freight, fact.ItemsPerOrder, fact.DistinctSKUs,
				float(fact.DeliveryDays), boolean(fact.DeliveredLate),
			}); err != nil {
				return fmt.Errorf("write fact %s: %w", fact.OrderID, err)
			}
			row++
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", FactsSheet, err)
	}
	return nil
}

func (w *Workbook) writeFamily(f *excelize.File, fam core.Family, header, total int) error {
	var steps []core.WaterfallStep
	for _, m := range report.SortedMonths(w.steps) {
		for _, s := range w.steps[m] {
			if s.Family == fam {
				steps = append(steps, s)
			}
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Dimension != steps[j].Dimension {
			return steps[i].Dimension < steps[j].Dimension
		}
		return steps[i].SortKey < steps[j].SortKey
	})

	name := FamilySheet(fam)
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &stepsHeader); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if err := f.SetCellStyle(name, "A1", "I1", header); err != nil {
		return fmt.Errorf("style %s header: %w", name, err)
	}
	for i, s := range steps {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			s.Month.String(), string(s.Dimension), s.MonthIndex, s.SortInMonth, s.SortKey,
			s.Stage, s.Component, s.Amount, s.IsTotal,
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, row, err)
		}
		if s.IsTotal {
			end, _ := excelize.CoordinatesToCellName(len(values), row)
			if err := f.SetCellStyle(name, cell, end, total); err != nil {
				return fmt.Errorf("style %s row %d: %w", name, row, err)
			}
		}
	}
	if err := f.SetColWidth(name, "F", "G", 16); err != nil {
		return fmt.Errorf("size %s columns: %w", name, err)
	}
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze %s header: %w", name, err)
	}
	return nil
}

func (w *Workbook) writeDrilldowns(f *excelize.File, header int) error {
	if _, err := f.NewSheet(DrilldownSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", DrilldownSheet, err)
	}
	if err := f.SetSheetRow(DrilldownSheet, "A1", &drilldownHeader); err != nil {
		return fmt.Errorf("write drilldown header: %w", err)
	}
	if err := f.SetCellStyle(DrilldownSheet, "A1", "K1", header); err != nil {
		return fmt.Errorf("style drilldown header: %w", err)
	}
	row := 2
	for _, d := range w.drilldowns {
		for rank, r := range d.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []interface{}{
				string(d.Dimension), string(d.Metric), d.MonthA.String(), d.MonthB.String(), rank + 1,
				r.Segment, r.MetricA, r.MetricB, r.Delta, r.AbsDelta, float(r.PctChange),
			}
			if err := f.SetSheetRow(DrilldownSheet, cell, &values); err != nil {
				return fmt.Errorf("write drilldown row %d: %w", row, err)
			}
			row++
		}
	}
	return nil
}

// Nullable values become empty cells.

func str(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func integer(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func float(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolean(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
