package main

import (
	"context"
	"os"

	"github.com/leadline/leadline/pkg/cmd"
	"github.com/leadline/leadline/pkg/log"
	"github.com/leadline/leadline/pkg/otelhelper"
	"github.com/leadline/leadline/pkg/services"
	"github.com/leadline/leadline/pkg/transport"
	"github.com/leadline/leadline/pkg/variables"
	"github.com/leadline/leadline/pkg/workflow"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "leadline-api",
		Usage:                 "Manage lead automation workflows and run sweeps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the sweep lock (in-process lock when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing (OTLP HTTP exporter)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing LeadLine API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "leadline-api")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer, continuing without", "error", err)
				}
			}

			mailer := transport.NewLogMailer(logger)
			sms := transport.NewLogSMSSender(logger)

			executor := workflow.NewExecutor(persistence, mailer, sms, logger)
			resolver := variables.NewResolver(persistence.VariableRepository())
			runner := workflow.NewRunner(persistence, executor, resolver, logger, tracer)
			sweeper := workflow.NewSweeper(persistence, executor, resolver, logger, tracer)

			locker := cmd.NewLocker(command.String("redis-url"))
			seen := cmd.NewKVStore(command.String("redis-url"))

			defer func() {
				if err := seen.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close kv store", "error", err)
				}
			}()

			automation := services.NewAutomation(persistence, runner, sweeper, locker, eventBus, seen, logger)

			if err := automation.RegisterEventHandlers(eventBus); err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			api := NewAPI(logger, persistence, automation)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
