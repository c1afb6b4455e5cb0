package report

import (
	"context"
	"errors"
	"testing"

	"gmvbridge/internal/core"
)

type recordingWriter struct {
	name    string
	log     *[]string
	failOn  string
	flushed bool
	runs    int
}

func (w *recordingWriter) call(op string) error {
	*w.log = append(*w.log, w.name+":"+op)
	if op == w.failOn {
		return errors.New(w.name + " failed")
	}
	return nil
}

func (w *recordingWriter) WriteFacts(context.Context, Run, []core.OrderFact) error {
	return w.call("facts")
}

func (w *recordingWriter) WriteWaterfall(context.Context, Run, []core.WaterfallStep) error {
	return w.call("waterfall")
}

func (w *recordingWriter) WriteDrilldown(context.Context, Run, Drilldown) error {
	return w.call("drilldown")
}

// flushingWriter also buffers and records runs.
type flushingWriter struct{ recordingWriter }

func (w *flushingWriter) Flush(context.Context) error {
	w.flushed = true
	return w.call("flush")
}

func (w *flushingWriter) RecordRun(context.Context, Summary) error {
	w.runs++
	return nil
}

func TestMultiFansOutInOrder(t *testing.T) {
	var log []string
	a := &recordingWriter{name: "a", log: &log}
	b := &flushingWriter{recordingWriter{name: "b", log: &log}}
	m := Multi{a, b}
	ctx := context.Background()

	if err := m.WriteFacts(ctx, Run{}, nil); err != nil {
		t.Fatalf("WriteFacts: %v", err)
	}
	if err := m.WriteDrilldown(ctx, Run{}, Drilldown{}); err != nil {
		t.Fatalf("WriteDrilldown: %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := m.RecordRun(ctx, Summary{}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	want := []string{"a:facts", "b:facts", "a:drilldown", "b:drilldown", "b:flush"}
	if len(log) != len(want) {
		t.Fatalf("calls = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("calls = %v, want %v", log, want)
		}
	}
	if !b.flushed || b.runs != 1 {
		t.Fatalf("buffering writer not flushed or run not recorded: %+v", b)
	}
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	var log []string
	m := Multi{
		&recordingWriter{name: "a", log: &log, failOn: "waterfall"},
		&recordingWriter{name: "b", log: &log},
	}
	if err := m.WriteWaterfall(context.Background(), Run{}, nil); err == nil {
		t.Fatal("expected error")
	}
	if len(log) != 1 || log[0] != "a:waterfall" {
		t.Fatalf("fan-out should stop after the failing writer: %v", log)
	}
}

func TestShardFactsKeepsUnknownMonthShard(t *testing.T) {
	facts := []core.OrderFact{
		{OrderID: "o1", Year: 2017, Month: 11},
		{OrderID: "o2", Year: 2017, Month: 10},
		{OrderID: "o3"},
		{OrderID: "o4", Year: 2017, Month: 11},
	}
	shards := ShardFacts(facts)
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	nov := core.Month{Year: 2017, Month: 11}
	if got := shards[nov]; len(got) != 2 || got[0].OrderID != "o1" || got[1].OrderID != "o4" {
		t.Fatalf("november shard should keep input order: %+v", got)
	}
	if got := shards[UnknownMonth]; len(got) != 1 || got[0].OrderID != "o3" {
		t.Fatalf("unknown shard = %+v", got)
	}

	months := SortedMonths(shards)
	if len(months) != 3 || months[0] != UnknownMonth || months[1] != (core.Month{Year: 2017, Month: 10}) || months[2] != nov {
		t.Fatalf("SortedMonths = %v", months)
	}
	if MonthLabel(months[0]) != "unknown" || MonthLabel(nov) != "2017-11" {
		t.Fatalf("labels = %q %q", MonthLabel(months[0]), MonthLabel(nov))
	}
}

func TestShardSteps(t *testing.T) {
	oct, nov := core.Month{Year: 2017, Month: 10}, core.Month{Year: 2017, Month: 11}
	shards := ShardSteps([]core.WaterfallStep{
		{Month: nov, SortInMonth: 0},
		{Month: oct, SortInMonth: 0},
		{Month: nov, SortInMonth: 1},
	})
	if len(shards[nov]) != 2 || len(shards[oct]) != 1 {
		t.Fatalf("unexpected shards: %+v", shards)
	}
}
