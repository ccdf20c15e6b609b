package main

import (
	"github.com/dukex/gragraf/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

// commonFlags are shared by every command that talks to the engine.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "engine-url",
			Usage:   "Base URL of the graph execution engine",
			Value:   engine.DefaultBaseURL,
			Sources: cli.EnvVars("ENGINE_URL"),
		},
		&cli.StringFlag{
			Name:  "stream-path",
			Usage: "Path of the streaming run endpoint",
			Value: engine.DefaultStreamPath,
		},
		&cli.StringFlag{
			Name:  "fallback-path",
			Usage: "Path of the single request run endpoint",
			Value: engine.DefaultFallbackPath,
		},
		&cli.BoolFlag{
			Name:  "no-fallback",
			Usage: "Fail instead of running once without streaming when the stream cannot be opened",
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "Session store URL (file://, postgres://, redis://)",
			Value:   "file://./data",
			Sources: cli.EnvVars("STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers for the kafka event bus",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
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
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

func withCommonFlags(flags ...cli.Flag) []cli.Flag {
	return append(commonFlags(), flags...)
}
