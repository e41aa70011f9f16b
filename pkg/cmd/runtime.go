package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/nodes"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/recorder"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Config selects the backends a Runtime is assembled from.
type Config struct {
	DatabaseURL string
	EventBus    string
	PluginsPath string
	FilesRoot   string
	MaxRevisits int
	MaxSteps    int
	Tracing     bool
	// Metrics receives the engine collectors when set.
	Metrics prometheus.Registerer
}

// Runtime is the wired set of components both binaries run on.
type Runtime struct {
	Persistence persistence.Persistence
	Publisher   eventbus.Publisher
	Registry    *registry.Registry
	Recorder    *recorder.Recorder
	Engine      *engine.Engine
	Supervisor  *supervisor.Supervisor

	logger  *slog.Logger
	closers []func(context.Context) error
}

func NewRuntime(ctx context.Context, logger *slog.Logger, cfg Config) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	p, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt.Persistence = p
	rt.closers = append(rt.closers, p.Close)

	publisher, err := NewEventBus(cfg.EventBus, logger)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	rt.Publisher = publisher
	rt.closers = append(rt.closers, func(context.Context) error { return publisher.Close() })

	rt.Registry, err = NewRegistry(logger, cfg.PluginsPath, publisher, cfg.FilesRoot)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	opts := []engine.Option{
		engine.WithPublisher(publisher),
		engine.WithMaxRevisits(cfg.MaxRevisits),
		engine.WithMaxSteps(cfg.MaxSteps),
	}

	if cfg.Metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics.New(cfg.Metrics)))
	}

	if cfg.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "flowrun")
		if err != nil {
			_ = rt.Close(ctx)

			return nil, err
		}

		opts = append(opts, engine.WithTracer(tracer))
		rt.closers = append(rt.closers, shutdown)
	}

	rt.Recorder = recorder.New(p, logger)
	rt.Engine = engine.New(nodes.NewRegistry(rt.Registry), rt.Recorder, logger, opts...)
	rt.Supervisor = supervisor.New(rt.Engine, p, rt.Recorder, logger)

	return rt, nil
}

// Close stops in-flight executions, then releases backends in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.Supervisor != nil {
		errs = append(errs, rt.Supervisor.Shutdown(ctx))
	}

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.ErrorContext(ctx, "failed to close runtime component", "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
