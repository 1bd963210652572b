// Package pipeline provides the execution environment, the Task interface
// and the sequential runner at the core of Talaria. A pipeline is a flat,
// ordered list of tasks sharing one mutable environment; any task failure
// aborts the remainder of the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/internal/tracing"
)

// Pipeline is an ordered sequence of tasks executed against one shared
// environment. Tasks run strictly in sequence; there is no task-level
// concurrency, retry or rollback.
type Pipeline struct {
	tasks           []Task
	logger          *zap.Logger
	tracer          trace.Tracer
	tracingShutdown func(context.Context) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for the pipeline and every run.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracing enables OpenTelemetry tracing for pipeline runs. Setup
// failures are logged and the pipeline continues without tracing.
func WithTracing(config tracing.Config) Option {
	return func(p *Pipeline) {
		shutdown, err := tracing.Setup(context.Background(), config, p.logger)
		if err != nil {
			p.logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
			return
		}
		p.tracingShutdown = shutdown
		p.logger.Info("Tracing setup complete",
			zap.String("service", config.ServiceName),
			zap.String("endpoint", config.OTLPEndpoint))
	}
}

// New creates an empty pipeline. Apply WithLogger before WithTracing so
// tracing setup is logged through the configured logger.
func New(options ...Option) *Pipeline {
	p := &Pipeline{
		logger: zap.NewNop(),
		tracer: otel.Tracer("talaria/pipeline"),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Add appends tasks to the pipeline and returns it for chaining.
func (p *Pipeline) Add(tasks ...Task) *Pipeline {
	p.tasks = append(p.tasks, tasks...)
	return p
}

// Run executes every task in order against a fresh environment seeded with
// the initial fields, and returns the final field map. The first task error
// aborts the run; remaining tasks are not executed and side effects already
// performed are not rolled back.
func (p *Pipeline) Run(ctx context.Context, initial map[string]any) (map[string]any, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))

	env := NewEnv(initial)
	env.SetLogger(logger)

	ctx, runSpan := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.Int("pipeline.tasks", len(p.tasks)),
		))
	defer runSpan.End()

	logger.Info("Starting pipeline run", zap.Int("tasks", len(p.tasks)))
	start := time.Now()

	for i, task := range p.tasks {
		if err := ctx.Err(); err != nil {
			runSpan.SetStatus(codes.Error, "run cancelled")
			return nil, fmt.Errorf("pipeline cancelled before task %d: %w", i, err)
		}

		name := taskName(task)
		taskCtx, span := p.tracer.Start(ctx, "pipeline.task",
			trace.WithAttributes(
				attribute.String("task.type", name),
				attribute.Int("task.index", i),
			))

		err := task.Run(taskCtx, env)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "task failed")
			span.End()
			runSpan.SetStatus(codes.Error, "run failed")
			logger.Error("Task failed, aborting pipeline",
				zap.String("task", name),
				zap.Int("index", i),
				zap.Error(err))
			return nil, fmt.Errorf("task %d (%s): %w", i, name, err)
		}
		span.End()
	}

	logger.Info("Pipeline run complete", zap.Duration("elapsed", time.Since(start)))
	return env.Fields(), nil
}

// Close releases pipeline resources, shutting down tracing if it was
// enabled. It should be called when the pipeline is no longer needed.
func (p *Pipeline) Close() error {
	if p.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.tracingShutdown(ctx); err != nil {
			p.logger.Error("Error shutting down tracing", zap.Error(err))
			return err
		}
		p.logger.Info("Tracing shutdown complete")
	}
	return nil
}
