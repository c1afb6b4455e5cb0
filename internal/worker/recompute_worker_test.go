package worker

import (
	"context"
	"errors"
	"testing"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/core"
	"gmvbridge/internal/services"
)

type fakeRunner struct {
	calls []services.RunOptions
	err   error
}

func (r *fakeRunner) Run(_ context.Context, opts services.RunOptions) (services.RunResult, error) {
	r.calls = append(r.calls, opts)
	if r.err != nil {
		return services.RunResult{}, r.err
	}
	return services.RunResult{}, nil
}

func TestHandleRecomputeRequestMergesDefaults(t *testing.T) {
	runner := &fakeRunner{}
	defaults := services.RunOptions{Dimension: core.CategoryDimension, TopN: 10, Metric: core.MetricUnitPrice}
	w := NewRecomputeWorker(runner, defaults, nil)

	msg := &amqp.RecomputeRequestMessage{RequestID: "req-1", MonthA: "2017-01", MonthB: "2017-02", Dimension: "STATE", TopN: 3}
	if err := w.HandleRecomputeRequest(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.calls))
	}
	got := runner.calls[0]
	want := services.RunOptions{
		MonthA:    core.Month{Year: 2017, Month: 1},
		MonthB:    core.Month{Year: 2017, Month: 2},
		Dimension: core.StateDimension,
		TopN:      3,
		Metric:    core.MetricUnitPrice,
		RequestID: "req-1",
	}
	if got != want {
		t.Fatalf("options = %+v, want %+v", got, want)
	}
}

func TestHandleRecomputeRequestOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		msg      amqp.RecomputeRequestMessage
		runErr   error
		wantErr  bool
		wantRuns int
	}{
		{name: "empty request uses defaults", msg: amqp.RecomputeRequestMessage{RequestID: "r"}, wantRuns: 1},
		{name: "invalid request is dropped", msg: amqp.RecomputeRequestMessage{Dimension: "city"}, wantRuns: 0},
		{name: "half a month range is dropped", msg: amqp.RecomputeRequestMessage{MonthA: "2017-01"}, wantRuns: 0},
		{name: "reversed months are dropped", msg: amqp.RecomputeRequestMessage{MonthA: "2017-03", MonthB: "2017-01"}, wantRuns: 0},
		{name: "input failure is retried", msg: amqp.RecomputeRequestMessage{}, runErr: core.ErrInputUnavailable, wantErr: true, wantRuns: 1},
		{
			name:     "identity violation is not retried",
			msg:      amqp.RecomputeRequestMessage{},
			runErr:   &core.IdentityError{Family: core.FamilyVolumeAOV},
			wantRuns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			w := NewRecomputeWorker(runner, services.RunOptions{}, nil)

			msg := tt.msg
			err := w.HandleRecomputeRequest(context.Background(), &msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.runErr) {
				t.Fatalf("error should wrap the run failure, got %v", err)
			}
			if len(runner.calls) != tt.wantRuns {
				t.Fatalf("runs = %d, want %d", len(runner.calls), tt.wantRuns)
			}
		})
	}
}
