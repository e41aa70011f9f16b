package cmd

import (
	"github.com/dukex/flowrun/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

// RuntimeFlags are the flags every binary accepts to assemble a Runtime.
func RuntimeFlags(defaultDatabaseURL string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (memory://, file://, sqlite://, postgres://, redis://)",
			Value:   defaultDatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (none, gochannel, kafka, amqp)",
			Value:   "none",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:  "plugins-path",
			Usage: "Path to the directory containing action plugins",
			Value: "./plugins",
		},
		&cli.StringFlag{
			Name:    "files-root",
			Usage:   "Directory the file_operation action is confined to",
			Value:   ".",
			Sources: cli.EnvVars("FILES_ROOT"),
		},
		&cli.IntFlag{
			Name:  "max-revisits",
			Usage: "How many times a node may be entered during one execution",
			Value: engine.DefaultMaxRevisits,
		},
		&cli.IntFlag{
			Name:  "max-steps",
			Usage: "Hard ceiling on node invocations per execution",
			Value: engine.DefaultMaxSteps,
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ConfigFromCommand reads the RuntimeFlags of command.
func ConfigFromCommand(command *cli.Command) Config {
	return Config{
		DatabaseURL: command.String("database-url"),
		EventBus:    command.String("event-bus"),
		PluginsPath: command.String("plugins-path"),
		FilesRoot:   command.String("files-root"),
		MaxRevisits: command.Int("max-revisits"),
		MaxSteps:    command.Int("max-steps"),
		Tracing:     command.Bool("otel"),
	}
}
