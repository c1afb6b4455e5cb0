// Package report defines the output sinks of a run.
package report

import (
	"context"
	"errors"
	"sort"
	"time"

	"gmvbridge/internal/core"
)

// Run identifies the pass that produced a batch of output.
type Run struct {
	ID        string
	StartedAt time.Time
}

// Drilldown is one ranked comparison between two months.
type Drilldown struct {
	Dimension core.Dimension
	Metric    core.DrilldownMetric
	MonthA    core.Month
	MonthB    core.Month
	Rows      []core.DrilldownRow
}

// Summary is the outcome of a completed run.
type Summary struct {
	Run            Run
	FinishedAt     time.Time
	Facts          int
	Months         int
	Steps          int
	DrilldownRows  int
	RecalcWarnings int
}

// Ports for outbound adapters.
type (
	// Writer receives every output of a run. Facts and waterfall steps are
	// sharded by month; writing a shard replaces whatever the sink held for
	// that month, so a rerun never duplicates rows.
	Writer interface {
		WriteFacts(ctx context.Context, run Run, facts []core.OrderFact) error
		WriteWaterfall(ctx context.Context, run Run, steps []core.WaterfallStep) error
		WriteDrilldown(ctx context.Context, run Run, d Drilldown) error
	}

	// RunRecorder keeps a log of completed runs.
	RunRecorder interface {
		RecordRun(ctx context.Context, s Summary) error
	}
)

// Multi fans every write out to several writers in order. The first failure
// stops the fan-out.
type Multi []Writer

func (m Multi) WriteFacts(ctx context.Context, run Run, facts []core.OrderFact) error {
	for _, w := range m {
		if err := w.WriteFacts(ctx, run, facts); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) WriteWaterfall(ctx context.Context, run Run, steps []core.WaterfallStep) error {
	for _, w := range m {
		if err := w.WriteWaterfall(ctx, run, steps); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) WriteDrilldown(ctx context.Context, run Run, d Drilldown) error {
	for _, w := range m {
		if err := w.WriteDrilldown(ctx, run, d); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun forwards to every writer that also records runs.
func (m Multi) RecordRun(ctx context.Context, s Summary) error {
	var errs []error
	for _, w := range m {
		if rr, ok := w.(RunRecorder); ok {
			errs = append(errs, rr.RecordRun(ctx, s))
		}
	}
	return errors.Join(errs...)
}

// Flusher is implemented by sinks that buffer output until the run ends,
// such as a workbook written to disk in one go.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Flush flushes every writer that buffers.
func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, w := range m {
		if f, ok := w.(Flusher); ok {
			errs = append(errs, f.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}

// UnknownMonth keys the shard of facts whose month cannot be resolved. It
// sorts before every real month.
var UnknownMonth = core.Month{}

// ShardFacts groups facts by month. Facts without a usable month go to the
// UnknownMonth shard, so every delivered order reaches the fact tables.
func ShardFacts(facts []core.OrderFact) map[core.Month][]core.OrderFact {
	out := make(map[core.Month][]core.OrderFact)
	for _, f := range facts {
		m := f.MonthKey()
		if m.IsZero() {
			m = UnknownMonth
		}
		out[m] = append(out[m], f)
	}
	return out
}

// MonthLabel renders a shard key for humans.
func MonthLabel(m core.Month) string {
	if m.IsZero() {
		return "unknown"
	}
	return m.String()
}

// ShardSteps groups waterfall steps by month.
func ShardSteps(steps []core.WaterfallStep) map[core.Month][]core.WaterfallStep {
	out := make(map[core.Month][]core.WaterfallStep)
	for _, s := range steps {
		out[s.Month] = append(out[s.Month], s)
	}
	return out
}

// SortedMonths returns the keys of a shard map in month order.
func SortedMonths[T any](shards map[core.Month]T) []core.Month {
	months := make([]core.Month, 0, len(shards))
	for m := range shards {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}
