// Package pipeline runs ordered strategy requests over a set of data bundles.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/strategy"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"github.com/Aidin1998/bundleprep/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "bundleprep/pipeline"

// Executor resolves each request through a registry and applies it.
type Executor struct {
	registry *strategy.Registry
	logger   *zap.Logger
	tracer   trace.Tracer
	steps    metric.Int64Counter
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracerProvider traces steps with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		e.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider counts steps with mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Executor) {
		e.steps = newStepCounter(mp)
	}
}

func newStepCounter(mp metric.MeterProvider) metric.Int64Counter {
	c, err := mp.Meter(instrumentationName).Int64Counter("bundleprep.pipeline.steps",
		metric.WithDescription("Pipeline steps executed, by strategy and outcome"))
	if err != nil {
		return nil
	}
	return c
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *strategy.Registry, l *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		logger:   logger.OrNop(l).Named("pipeline"),
		tracer:   otel.Tracer(instrumentationName),
		steps:    newStepCounter(otel.GetMeterProvider()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is what a run leaves behind.
type Result struct {
	// Bundles are the bundles after the last step. A step that returns a combined
	// data bundle replaces the working set with it.
	Bundles []*bundle.DataBundle
	// Requests hold each step's request, including its RetVal.
	Requests []*strategy.Request
}

// Output returns the last non-empty RetVal, or nil.
func (r *Result) Output() map[string]any {
	for i := len(r.Requests) - 1; i >= 0; i-- {
		if len(r.Requests[i].RetVal) > 0 {
			return r.Requests[i].RetVal
		}
	}
	return nil
}

// Available lists the request templates of every registered strategy.
func (e *Executor) Available() []strategy.RequestConfig {
	return e.registry.Available()
}

// Run applies reqs in order. The first failing step stops the run; its error names the
// step index and strategy.
func (e *Executor) Run(ctx context.Context, bundles []*bundle.DataBundle, reqs []*strategy.Request) (*Result, error) {
	if len(reqs) == 0 {
		return nil, errors.Configurationf("pipeline has no steps").WithField("missing", "pipeline", "required")
	}
	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("pipeline.steps", len(reqs)),
		attribute.Int("pipeline.bundles", len(bundles)),
	))
	defer span.End()

	res := &Result{Bundles: bundles, Requests: make([]*strategy.Request, 0, len(reqs))}
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return res, err
		}
		if err := e.step(ctx, i, req, res); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
	}
	e.logger.Info("Pipeline finished",
		zap.Int("steps", len(reqs)),
		zap.Int("bundles", len(res.Bundles)))
	return res, nil
}

func (e *Executor) step(ctx context.Context, i int, req *strategy.Request, res *Result) (err error) {
	if req == nil {
		return fmt.Errorf("step %d: %w", i, errors.Configurationf("nil strategy request"))
	}
	ctx, span := e.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.Int("step.index", i),
		attribute.String("step.strategy", req.StrategyName),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.StrategyRuns.WithLabelValues(req.StrategyName, outcome).Inc()
		metrics.StrategyDuration.WithLabelValues(req.StrategyName).Observe(time.Since(start).Seconds())
		if e.steps != nil {
			e.steps.Add(ctx, 1, metric.WithAttributes(
				attribute.String("strategy", req.StrategyName),
				attribute.String("outcome", outcome)))
		}
	}()

	s, err := e.registry.Create(req)
	if err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}
	if err = s.VerifyExecutable(res.Bundles); err != nil {
		e.logger.Warn("Strategy not executable",
			zap.Int("step", i),
			zap.String("strategy", s.Name()),
			zap.Error(err))
		return fmt.Errorf("step %d (%s): %w", i, s.Name(), err)
	}
	if err = s.Apply(ctx, res.Bundles); err != nil {
		e.logger.Error("Strategy failed",
			zap.Int("step", i),
			zap.String("strategy", s.Name()),
			zap.Error(err))
		return fmt.Errorf("step %d (%s): %w", i, s.Name(), err)
	}
	res.Requests = append(res.Requests, req)
	if combined, ok := req.RetVal[strategy.RetValDataBundle].(*bundle.DataBundle); ok {
		res.Bundles = []*bundle.DataBundle{combined}
	}
	e.logger.Debug("Strategy applied",
		zap.Int("step", i),
		zap.String("strategy", s.Name()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
