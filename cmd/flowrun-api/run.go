package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing flowrun API")

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	config := cmd.ConfigFromCommand(command)
	config.Metrics = metricsRegistry

	rt, err := cmd.NewRuntime(ctx, logger, config)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := rt.Close(closeCtx); err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	repository := flows.NewFileRepository(command.String("flows-path"))

	var scheduler *schedule.Scheduler

	if command.Bool("scheduler") {
		scheduler = schedule.New(rt.Supervisor, logger)

		count, err := scheduler.Load(ctx, repository)
		if err != nil {
			logger.WarnContext(ctx, "Failed to load flow schedules", "error", err)
		}

		logger.InfoContext(ctx, "Scheduler started", "flows", count)
		scheduler.Start()

		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := scheduler.Stop(stopCtx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
			}
		}()
	}

	api := NewAPI(logger, rt, repository, metricsRegistry)
	api.scheduler = scheduler
	app := api.App()

	listenErr := make(chan error, 1)

	go func() {
		listenErr <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		logger.InfoContext(ctx, "Shutting down API")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	}
}
