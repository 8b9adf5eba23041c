// Package main provides the LeadLine reconciliation sweeper daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/leadline/leadline/pkg/cmd"
	"github.com/leadline/leadline/pkg/log"
	"github.com/leadline/leadline/pkg/otelhelper"
	"github.com/leadline/leadline/pkg/services"
	"github.com/leadline/leadline/pkg/transport"
	"github.com/leadline/leadline/pkg/variables"
	"github.com/leadline/leadline/pkg/workflow"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "leadline-sweeper",
		Usage:                 "Periodically reconcile pending workflow steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "schedule",
				Usage:   "Cron expression for the sweep schedule",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
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

			logger.InfoContext(ctx, "Initializing LeadLine sweeper",
				"schedule", command.String("schedule"),
			)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "leadline-sweeper")
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

			automation := services.NewAutomation(persistence, runner, sweeper, locker, nil, nil, logger)

			scheduler := cron.New(cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			))

			_, err := scheduler.AddFunc(command.String("schedule"), func() {
				outcome, err := automation.RunSweep(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Sweep failed", "error", err)

					return
				}

				if outcome.Skipped {
					logger.InfoContext(ctx, "Sweep skipped", "reason", outcome.Message)

					return
				}

				logger.InfoContext(ctx, "Sweep finished",
					"processed_entities", outcome.Result.ProcessedEntities,
					"processed_steps", outcome.Result.ProcessedSteps,
				)
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			defer scheduler.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down sweeper")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
