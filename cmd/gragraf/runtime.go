package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/gragraf/pkg/cmd"
	"github.com/dukex/gragraf/pkg/engine"
	"github.com/dukex/gragraf/pkg/eventbus"
	"github.com/dukex/gragraf/pkg/log"
	"github.com/dukex/gragraf/pkg/otelhelper"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/run"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "gragraf"

// runtime holds the collaborators every command builds from its flags.
type runtime struct {
	logger     *slog.Logger
	engine     *engine.Client
	store      persistence.SessionStore
	eventBus   eventbus.EventBus
	tracer     trace.Tracer
	noFallback bool
	shutdown   otelhelper.ShutdownFunc
}

func newRuntime(ctx context.Context, command *cli.Command, module string) (*runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(module)

	rt := &runtime{
		logger:     logger,
		tracer:     otelhelper.Tracer(serviceName),
		noFallback: command.Bool("no-fallback"),
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.tracer = tracer
		rt.shutdown = shutdown
	}

	rt.engine = engine.NewClient(engine.Config{
		BaseURL:      command.String("engine-url"),
		StreamPath:   command.String("stream-path"),
		FallbackPath: command.String("fallback-path"),
	}, logger)

	store, err := cmd.NewSessionStore(ctx, logger, command.String("store-url"))
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.store = store

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.eventBus = eventBus

	return rt, nil
}

// controllerOptions wires the store, bus and tracer into every controller.
func (r *runtime) controllerOptions(extra ...run.Option) []run.Option {
	opts := []run.Option{
		run.WithStore(r.store),
		run.WithPublisher(r.eventBus),
		run.WithTracer(r.tracer),
	}

	if r.noFallback {
		opts = append(opts, run.WithoutFallback())
	}

	return append(opts, extra...)
}

func (r *runtime) Close(ctx context.Context) {
	if r.eventBus != nil {
		if err := r.eventBus.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if r.store != nil {
		if err := r.store.Close(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Failed to close session store", "error", err)
		}
	}

	if r.shutdown != nil {
		if err := r.shutdown(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
