package worker

import (
	"context"
	"errors"
	"fmt"

	"gmvbridge/internal/amqp"
	"gmvbridge/internal/core"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/services"
)

// Runner executes one decomposition run.
type Runner interface {
	Run(ctx context.Context, opts services.RunOptions) (services.RunResult, error)
}

// RecomputeWorker turns recompute requests from the queue into runs.
type RecomputeWorker struct {
	runner   Runner
	defaults services.RunOptions
	logger   *applog.Logger
}

// NewRecomputeWorker creates a worker. Fields left empty in a request take
// their value from defaults.
func NewRecomputeWorker(runner Runner, defaults services.RunOptions, logger *applog.Logger) *RecomputeWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &RecomputeWorker{
		runner:   runner,
		defaults: defaults,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleRecomputeRequest processes a single recompute request from AMQP.
// Returning an error makes the consumer requeue the message.
func (w *RecomputeWorker) HandleRecomputeRequest(ctx context.Context, msg *amqp.RecomputeRequestMessage) error {
	logger := applog.FromContextOr(ctx, w.logger.With("request_id", msg.RequestID)).
		WithComponent(applog.ComponentWorker)

	opts, err := w.options(msg)
	if err != nil {
		// Unusable request: log and drop rather than requeue forever.
		logger.ErrorContext(ctx, "Rejecting recompute request", applog.FieldError, err)
		return nil
	}

	logger.InfoContext(ctx, "Processing recompute request",
		applog.FieldMonthA, opts.MonthA.String(),
		applog.FieldMonthB, opts.MonthB.String(),
		applog.FieldDimension, opts.Dimension.String())

	res, err := w.runner.Run(ctx, opts)
	if err != nil {
		if core.IsIdentityViolation(err) {
			// Rerunning on the same input yields the same violation.
			logger.ErrorContext(ctx, "Recompute request failed identity check", applog.FieldError, err)
			return nil
		}
		return fmt.Errorf("run decomposition: %w", err)
	}

	logger.InfoContext(ctx, "Recompute request completed",
		applog.FieldRunID, res.Summary.Run.ID,
		"steps", res.Summary.Steps)
	return nil
}

func (w *RecomputeWorker) options(msg *amqp.RecomputeRequestMessage) (services.RunOptions, error) {
	if err := msg.Validate(); err != nil {
		return services.RunOptions{}, err
	}
	opts := w.defaults
	opts.RequestID = msg.RequestID
	if msg.MonthA != "" || msg.MonthB != "" {
		a, errA := core.ParseMonth(msg.MonthA)
		b, errB := core.ParseMonth(msg.MonthB)
		if errA != nil || errB != nil {
			return services.RunOptions{}, errors.New("month_a and month_b must be set together")
		}
		opts.MonthA, opts.MonthB = a, b
	}
	if msg.Dimension != "" {
		d, err := core.ParseDimension(msg.Dimension)
		if err != nil {
			return services.RunOptions{}, err
		}
		opts.Dimension = d
	}
	if msg.TopN > 0 {
		opts.TopN = msg.TopN
	}
	if msg.Metric != "" {
		m, err := core.ParseDrilldownMetric(msg.Metric)
		if err != nil {
			return services.RunOptions{}, err
		}
		opts.Metric = m
	}
	return opts, opts.Validate()
}
