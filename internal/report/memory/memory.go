package memory

import (
	"context"
	"sync"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

// Sink keeps the latest output in memory with the same per-month replace
// semantics as the persistent sinks.
type Sink struct {
	mu         sync.Mutex
	facts      map[core.Month][]core.OrderFact
	steps      map[core.Month][]core.WaterfallStep
	drilldowns []report.Drilldown
	runs       []report.Summary
}

var (
	_ report.Writer      = (*Sink)(nil)
	_ report.RunRecorder = (*Sink)(nil)
)

func New() *Sink {
	return &Sink{
		facts: make(map[core.Month][]core.OrderFact),
		steps: make(map[core.Month][]core.WaterfallStep),
	}
}

func (s *Sink) WriteFacts(ctx context.Context, _ report.Run, facts []core.OrderFact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for m, shard := range report.ShardFacts(facts) {
		s.facts[m] = shard
	}
	return nil
}

func (s *Sink) WriteWaterfall(ctx context.Context, _ report.Run, steps []core.WaterfallStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for m, shard := range report.ShardSteps(steps) {
		s.steps[m] = shard
	}
	return nil
}

// WriteDrilldown replaces any earlier ranking of the same comparison.
func (s *Sink) WriteDrilldown(ctx context.Context, _ report.Run, d report.Drilldown) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, old := range s.drilldowns {
		if old.Dimension == d.Dimension && old.Metric == d.Metric && old.MonthA == d.MonthA && old.MonthB == d.MonthB {
			s.drilldowns[i] = d
			return nil
		}
	}
	s.drilldowns = append(s.drilldowns, d)
	return nil
}

func (s *Sink) RecordRun(_ context.Context, sum report.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, sum)
	return nil
}

// Facts returns every stored fact in month order.
func (s *Sink) Facts() []core.OrderFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.OrderFact
	for _, m := range report.SortedMonths(s.facts) {
		out = append(out, s.facts[m]...)
	}
	return out
}

// Steps returns the stored waterfall rows of one month.
func (s *Sink) Steps(m core.Month) []core.WaterfallStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.WaterfallStep(nil), s.steps[m]...)
}

// StepCount returns the number of stored waterfall rows.
func (s *Sink) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, shard := range s.steps {
		n += len(shard)
	}
	return n
}

func (s *Sink) Drilldowns() []report.Drilldown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Drilldown(nil), s.drilldowns...)
}

func (s *Sink) Runs() []report.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Summary(nil), s.runs...)
}
