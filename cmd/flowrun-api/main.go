package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowrun-api",
		Usage:                 "Serve the flow execution API and run scheduled flows",
		EnableShellCompletion: true,
		Flags: append(cmd.RuntimeFlags("file://./data"),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "flows-path",
				Usage:   "Directory holding flow definitions",
				Value:   "./flows",
				Sources: cli.EnvVars("FLOWS_PATH"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Start published flows on their cron schedule",
				Value:   true,
				Sources: cli.EnvVars("SCHEDULER_ENABLED"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, command)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("API stopped with error", "error", err)
		os.Exit(1)
	}
}
