package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/supervisor"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

// watchDrainTimeout bounds how long run --watch waits for the terminal event
// after the execution itself has finished.
const watchDrainTimeout = 5 * time.Second

var (
	errFlowPathRequired = errors.New("flow file path is required")
	errExecutionFailed  = errors.New("execution did not complete")
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "flowrun",
		Usage:                 "Validate and execute flow definitions",
		EnableShellCompletion: true,
		Flags:                 cmd.RuntimeFlags("memory://"),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			validateCommand(),
			runCommand(),
			watchCommand(),
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a flow file against the graph rules",
		ArgsUsage: "<flow.json>",
		Action: func(ctx context.Context, command *cli.Command) error {
			flow, err := loadFlow(command)
			if err != nil {
				return err
			}

			result := graph.Validate(flow)
			out := command.Root().Writer

			if result.Valid {
				fmt.Fprintf(out, "flow %s is valid\n", flow.ID)

				return nil
			}

			for _, v := range result.Violations {
				fmt.Fprintf(out, "%s: %s\n", v.Code, v.Message)
			}

			return result.Err(flow.ID)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a flow file and print its record and log trail",
		ArgsUsage: "<flow.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Usage: "JSON input for the execution",
			},
			&cli.StringFlag{
				Name:  "input-file",
				Usage: "File holding the JSON input for the execution",
			},
			&cli.BoolFlag{
				Name:  "allow-draft",
				Usage: "Run the flow even when it is not published",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Cancel the execution after this long (0 waits forever)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Print progress events to stderr while the flow runs",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			flow, err := loadFlow(command)
			if err != nil {
				return err
			}

			input, err := readInput(command)
			if err != nil {
				return err
			}

			logger := log.WithModule("cli")

			config := cmd.ConfigFromCommand(command)

			watching := command.Bool("watch")
			if watching && (config.EventBus == "" || config.EventBus == "none") {
				config.EventBus = "gochannel"
			}

			rt, err := cmd.NewRuntime(ctx, logger, config)
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			var opts []supervisor.StartOption
			if command.Bool("allow-draft") {
				opts = append(opts, supervisor.AllowDraft())
			}

			var watched <-chan struct{}

			if watching {
				executionID := uuid.NewString()
				opts = append(opts, supervisor.WithExecutionID(executionID))

				sub, release, err := cmd.NewEventSubscriber(config.EventBus, rt.Publisher, logger)
				if err != nil {
					return err
				}

				defer func() { _ = release() }()

				watchCtx, stop := context.WithCancel(ctx)
				defer stop()

				watched, err = eventbus.Watch(watchCtx, sub, executionID, printProgress(command.Root().ErrWriter))
				if err != nil {
					return err
				}
			}

			id, err := rt.Supervisor.Start(ctx, flow, input, opts...)
			if err != nil {
				return err
			}

			snapshot, err := wait(ctx, rt.Supervisor, id, command.Duration("timeout"))
			if err != nil {
				return err
			}

			if watched != nil {
				select {
				case <-watched:
				case <-time.After(watchDrainTimeout):
					logger.WarnContext(ctx, "Terminal progress event not received", "execution_id", id)
				}
			}

			logs, err := rt.Supervisor.Logs(ctx, id)
			if err != nil {
				return err
			}

			if err := printResult(command.Root().Writer, snapshot, logs); err != nil {
				return err
			}

			return executionErr(snapshot)
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print progress events published on the event bus, one JSON object per line",
		ArgsUsage: "[execution-id]",
		Description: "Follows the configured --event-bus (kafka). With an execution id the command " +
			"exits after that execution ends, otherwise it runs until interrupted.",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("cli")
			executionID := command.Args().First()

			sub, release, err := cmd.NewEventSubscriber(command.String("event-bus"), nil, logger)
			if err != nil {
				return err
			}

			defer func() { _ = release() }()

			done, err := eventbus.Watch(ctx, sub, executionID, printProgress(command.Root().Writer))
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-ctx.Done():
			}

			return nil
		},
	}
}

// printProgress writes each event as {"type": ..., "event": ...} on its own line.
func printProgress(w io.Writer) eventbus.ProgressFunc {
	encoder := json.NewEncoder(w)

	return func(eventType events.EventType, event any) {
		_ = encoder.Encode(map[string]any{"type": eventType, "event": event})
	}
}

// executionErr reports a run that did not complete, matching the engine
// sentinel of its recorded error when there is one.
func executionErr(snapshot execution.Snapshot) error {
	if snapshot.Status == models.ExecutionStatusCompleted {
		return nil
	}

	if sentinel := engine.Sentinel(snapshot.Error); sentinel != nil {
		return fmt.Errorf("%w: %s: %w", errExecutionFailed, snapshot.Status, sentinel)
	}

	return fmt.Errorf("%w: %s", errExecutionFailed, snapshot.Status)
}

// wait blocks until the execution ends, cancelling it once timeout elapses.
func wait(ctx context.Context, sup *supervisor.Supervisor, id string, timeout time.Duration) (execution.Snapshot, error) {
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			_ = sup.Cancel(context.WithoutCancel(ctx), id)
		})
		defer timer.Stop()
	}

	return sup.Wait(ctx, id)
}

func loadFlow(command *cli.Command) (*models.Flow, error) {
	path := command.Args().First()
	if path == "" {
		return nil, errFlowPathRequired
	}

	return flows.Load(path)
}

// readInput decodes --input or --input-file. Without either the execution
// starts with an empty object.
func readInput(command *cli.Command) (any, error) {
	raw := []byte(command.String("input"))

	if path := command.String("input-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}

		raw = data
	}

	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("input is not valid JSON: %w", err)
	}

	return input, nil
}

func printResult(w io.Writer, snapshot execution.Snapshot, logs []*models.ExecutionLogEntry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(map[string]any{
		"execution": snapshot.Record(),
		"logs":      logs,
	})
}
