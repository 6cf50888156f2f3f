package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow"
)

// envFlags binds a flag to each setting the config layer reads from the
// environment. An explicitly passed flag overrides the variable.
var envFlags = []struct {
	name  string
	env   string
	usage string
}{
	{"database-type", config.DATABASE_TYPE, "Database type (POSTGRES, MYSQL, SQLLITE)"},
	{"database-url", config.DATABASE_URL, "Database URL for POSTGRES and MYSQL"},
	{"sqlite-file", config.DATABASE_SQLLITE_FILE_NAME, "SQLite database file"},
	{"port", config.ENGINE_SERVER_WEB_PORT, "HTTP API port"},
	{"worker-name", config.WORKER_NAME, "Worker name prefix (defaults to the hostname)"},
	{"redis-url", config.REDIS_URL, "Redis URL for the idempotency marker store"},
	{"kafka-brokers", config.KAFKA_BROKERS, "Comma separated Kafka brokers for lifecycle events"},
	{"log-level", config.LOG_LEVEL, "Log level (debug, info, warn, error)"},
}

func globalFlags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(envFlags))
	for _, f := range envFlags {
		flags = append(flags, &cli.StringFlag{
			Name:    f.name,
			Usage:   f.usage,
			Sources: cli.EnvVars(f.env),
		})
	}
	return flags
}

func applyFlags(ctx context.Context, command *cli.Command) (context.Context, error) {
	for _, f := range envFlags {
		if command.IsSet(f.name) {
			if err := os.Setenv(f.env, command.String(f.name)); err != nil {
				return ctx, err
			}
		}
	}
	courseflow.SetupLogger(config.GetSystemSettingString(config.LOG_LEVEL))
	return ctx, nil
}

func main() {
	cmd := &cli.Command{
		Name:                  "courseflow",
		EnableShellCompletion: true,
		Usage:                 "Resolve and execute course and session flow actions",
		Flags:                 globalFlags(),
		Before:                applyFlags,
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newTickCommand(),
			newOrganizationCommand("pause", "Deactivate every flow action of an organization"),
			newOrganizationCommand("resume", "Reactivate every flow action of an organization"),
			newActionCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("Courseflow exited with error", "error", err)
		os.Exit(1)
	}
}
