package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/core"
	"gmvbridge/internal/decompose"
	"gmvbridge/internal/drilldown"
	"gmvbridge/internal/facts"
	"gmvbridge/internal/input"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/monthly"
	"gmvbridge/internal/report"
)

// RunOptions selects what a run computes. Zero values fall back to defaults:
// the two latest months with orders, the category dimension, top 10 by unit
// price, raw mix weights and a 1e-6 identity tolerance.
type RunOptions struct {
	MonthA    core.Month
	MonthB    core.Month
	Dimension core.Dimension
	TopN      int
	Metric    core.DrilldownMetric
	Weighting decompose.Weighting
	Tolerance float64

	// RequestID links the run to the recompute request that triggered it.
	RequestID string
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Dimension == "" {
		o.Dimension = core.CategoryDimension
	}
	if o.TopN <= 0 {
		o.TopN = drilldown.DefaultTopN
	}
	if o.Metric == "" {
		o.Metric = core.MetricUnitPrice
	}
	if o.Weighting == "" {
		o.Weighting = decompose.RawWeights
	}
	if o.Tolerance <= 0 {
		o.Tolerance = core.DefaultTolerance
	}
	return o
}

// Validate rejects option combinations that cannot produce a run.
func (o RunOptions) Validate() error {
	var errs []error
	if o.Dimension != "" && !o.Dimension.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", core.ErrInvalidDimension, o.Dimension))
	}
	if o.Metric != "" && !o.Metric.IsValid() {
		errs = append(errs, fmt.Errorf("invalid drill-down metric %q", o.Metric))
	}
	if o.Weighting != "" && !o.Weighting.IsValid() {
		errs = append(errs, fmt.Errorf("invalid mix weighting %q", o.Weighting))
	}
	if o.MonthA.IsZero() != o.MonthB.IsZero() {
		errs = append(errs, errors.New("month_a and month_b must be set together"))
	}
	if !o.MonthA.IsZero() && !o.MonthB.IsZero() && !o.MonthA.Before(o.MonthB) {
		errs = append(errs, fmt.Errorf("month_a %s must precede month_b %s", o.MonthA, o.MonthB))
	}
	return errors.Join(errs...)
}

// RunPublisher announces completed runs.
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, msg *amqp.RunCompletedMessage) error
}

// RunResult is everything a run produced.
type RunResult struct {
	Summary   report.Summary
	Stats     facts.BuildStats
	Facts     []core.OrderFact
	Core      []core.CoreMetric
	Result    decompose.Result
	Drilldown report.Drilldown
	Recalc    []monthly.RecalcMismatch
}

// DecompositionService runs the whole pipeline: read the snapshot, build
// facts, aggregate, decompose, verify, rank and write.
type DecompositionService struct {
	reader    input.SnapshotReader
	sinks     report.Multi
	publisher RunPublisher
	engine    *decompose.Engine
	logger    *applog.Logger
	now       func() time.Time
}

// NewDecompositionService creates a service reading from reader and writing
// to every sink in order. publisher may be nil.
func NewDecompositionService(reader input.SnapshotReader, sinks []report.Writer, publisher RunPublisher, logger *applog.Logger) *DecompositionService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DecompositionService{
		reader:    reader,
		sinks:     report.Multi(sinks),
		publisher: publisher,
		engine:    decompose.NewEngine(),
		logger:    logger.WithComponent(applog.ComponentDecompose),
		now:       time.Now,
	}
}

// Run executes one run. Identity violations are returned as
// *core.IdentityError and nothing is written; a publish failure is logged
// but does not fail the run since the output is already committed.
func (s *DecompositionService) Run(ctx context.Context, opts RunOptions) (res RunResult, err error) {
	if err := opts.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("validate options: %w", err)
	}
	opts = opts.withDefaults()

	run := report.Run{ID: uuid.NewString(), StartedAt: s.now().UTC()}
	runLog := applog.NewRunLogger(s.logger)
	runLog.LogRunStart(ctx, run.ID, opts.MonthA.String(), opts.MonthB.String(), opts.Dimension.String())
	defer func() {
		runLog.LogRunEnd(ctx, run.ID, s.now().Sub(run.StartedAt).Milliseconds(), err)
	}()

	snap, err := s.reader.ReadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrInputUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrInputUnavailable, err)
		}
		return RunResult{}, fmt.Errorf("read snapshot: %w", err)
	}

	orderFacts, stats := facts.BuildWithStats(snap)
	s.logger.InfoContext(ctx, "Facts built",
		applog.FieldRunID, run.ID,
		applog.FieldOperation, applog.OpBuild,
		"orders_seen", stats.OrdersSeen,
		"not_delivered", stats.NotDelivered,
		"missing_items", stats.MissingItems,
		"duplicates", stats.Duplicates,
		"unknown_month", stats.UnknownMonth,
		applog.FieldRows, stats.Facts)

	coreRows := monthly.Core(orderFacts)
	priceQty := monthly.PriceQty(orderFacts)
	segments := make(map[core.Dimension][]core.SegmentMetric, len(core.Dimensions()))
	for _, d := range core.Dimensions() {
		segments[d] = monthly.BySegment(orderFacts, d)
	}

	recalc := monthly.CheckAOVRecalc(coreRows, priceQty, opts.Tolerance)
	for _, m := range recalc {
		s.logger.WarnContext(ctx, "AOV recalculation drift",
			applog.FieldRunID, run.ID,
			applog.FieldMonth, m.Month.String(),
			"detail", m.String())
	}

	result, err := s.engine.Run(ctx, decompose.Input{
		Core:      coreRows,
		PriceQty:  priceQty,
		Segments:  segments,
		Weighting: opts.Weighting,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("decompose: %w", err)
	}
	if err := decompose.Verify(result, opts.Tolerance); err != nil {
		runLog.LogError(ctx, "Decomposition identity violated", err, applog.OpVerify,
			applog.NewFields().WithRunID(run.ID).WithErrorType(applog.ErrorTypeIdentity))
		return RunResult{}, fmt.Errorf("verify: %w", err)
	}

	monthA, monthB := opts.MonthA, opts.MonthB
	if monthA.IsZero() {
		monthA, monthB, err = latestPair(coreRows)
		if err != nil {
			return RunResult{}, err
		}
	}
	table := monthly.PriceQtyBySegment(snap, opts.Dimension)
	if opts.Metric == core.MetricGMV || opts.Metric == core.MetricAOV {
		table = factTable(orderFacts, opts.Dimension)
	}
	rows, err := drilldown.Rank(table, monthA, monthB, drilldown.Options{TopN: opts.TopN, Metric: opts.Metric})
	if err != nil {
		return RunResult{}, fmt.Errorf("rank segments: %w", err)
	}
	dd := report.Drilldown{Dimension: opts.Dimension, Metric: opts.Metric, MonthA: monthA, MonthB: monthB, Rows: rows}

	if err := s.write(ctx, run, orderFacts, result.Steps, dd); err != nil {
		return RunResult{}, err
	}

	summary := report.Summary{
		Run:            run,
		FinishedAt:     s.now().UTC(),
		Facts:          len(orderFacts),
		Months:         len(coreRows),
		Steps:          len(result.Steps),
		DrilldownRows:  len(rows),
		RecalcWarnings: len(recalc),
	}
	if err := s.sinks.RecordRun(ctx, summary); err != nil {
		return RunResult{}, fmt.Errorf("record run: %w", err)
	}
	s.publish(ctx, summary, opts.RequestID)

	return RunResult{
		Summary:   summary,
		Stats:     stats,
		Facts:     orderFacts,
		Core:      coreRows,
		Result:    result,
		Drilldown: dd,
		Recalc:    recalc,
	}, nil
}

func (s *DecompositionService) write(ctx context.Context, run report.Run, orderFacts []core.OrderFact, steps []core.WaterfallStep, dd report.Drilldown) error {
	if err := s.sinks.WriteFacts(ctx, run, orderFacts); err != nil {
		return fmt.Errorf("write facts: %w", err)
	}
	if err := s.sinks.WriteWaterfall(ctx, run, steps); err != nil {
		return fmt.Errorf("write waterfall: %w", err)
	}
	if err := s.sinks.WriteDrilldown(ctx, run, dd); err != nil {
		return fmt.Errorf("write drilldown: %w", err)
	}
	if err := s.sinks.Flush(ctx); err != nil {
		return fmt.Errorf("flush sinks: %w", err)
	}
	s.logger.InfoContext(ctx, "Run output written",
		applog.FieldRunID, run.ID,
		applog.FieldOperation, applog.OpWrite,
		"sinks", len(s.sinks))
	return nil
}

func (s *DecompositionService) publish(ctx context.Context, summary report.Summary, requestID string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewRunCompletedMessage(summary, requestID)
	if err := s.publisher.PublishRunCompleted(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish run completed event",
			applog.FieldRunID, summary.Run.ID,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err)
	}
}

// latestPair returns the two most recent months that had orders.
func latestPair(rows []core.CoreMetric) (core.Month, core.Month, error) {
	var months []core.Month
	for _, r := range rows {
		if r.Orders > 0 {
			months = append(months, r.Month)
		}
	}
	if len(months) < 2 {
		return core.Month{}, core.Month{}, fmt.Errorf("pick drill-down months: %w: need two months with orders, have %d", core.ErrMonthNotFound, len(months))
	}
	return months[len(months)-2], months[len(months)-1], nil
}

// factTable rolls order facts up per segment so order-level metrics such as
// AOV and GMV rank against the same base as the waterfalls.
func factTable(orderFacts []core.OrderFact, dim core.Dimension) []core.PriceQtyMetric {
	segs := monthly.BySegment(orderFacts, dim)
	items := make(map[[2]string]int, len(segs))
	for _, f := range orderFacts {
		m := f.MonthKey()
		if m.IsZero() {
			continue
		}
		items[[2]string{m.String(), f.Segment(dim)}] += f.ItemsPerOrder
	}
	out := make([]core.PriceQtyMetric, 0, len(segs))
	for _, sm := range segs {
		out = append(out, core.NewPriceQtyMetric(sm.Month, sm.Segment, sm.Orders, items[[2]string{sm.Month.String(), sm.Segment}], sm.GMV))
	}
	return out
}
