package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	cli "github.com/urfave/cli/v3"

	"github.com/RealZimboGuy/courseflow/pkg/courseflow"
)

func withApp(fn func(ctx context.Context, app *courseflow.App, command *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		app, err := courseflow.New(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				slog.ErrorContext(ctx, "Failed to close", "error", err)
			}
		}()
		return fn(ctx, app, command)
	}
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scheduler, the event listener and the HTTP API",
		Action: withApp(func(ctx context.Context, app *courseflow.App, command *cli.Command) error {
			slog.InfoContext(ctx, "Starting courseflow", "worker", app.Scheduler.WorkerName())
			return app.Serve(ctx)
		}),
	}
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply every pending migration",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := courseflow.Migrate(true); err != nil {
						return err
					}
					slog.InfoContext(ctx, "Schema is up to date")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Roll back every migration",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := courseflow.Migrate(false); err != nil {
						return err
					}
					slog.InfoContext(ctx, "Schema rolled back")
					return nil
				},
			},
		},
	}
}

func newTickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Repair stale claims, resolve pending records and dispatch everything due, once",
		Action: withApp(func(ctx context.Context, app *courseflow.App, command *cli.Command) error {
			res, err := app.Tick(ctx)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Tick finished", "repaired", res.Repaired, "resolved", res.Resolved, "claimed", res.Claimed)
			return nil
		}),
	}
}

func newOrganizationCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<organization-id>",
		Action: withApp(func(ctx context.Context, app *courseflow.App, command *cli.Command) error {
			org := command.Args().First()
			if org == "" {
				return fmt.Errorf("%s needs an organization id", name)
			}
			var changed []int64
			var err error
			if name == "pause" {
				changed, err = app.Control.PauseOrganization(ctx, org)
			} else {
				changed, err = app.Control.ResumeOrganization(ctx, org)
			}
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Organization updated", "organization_id", org, "command", name, "actions", len(changed))
			return nil
		}),
	}
}

func newActionCommand() *cli.Command {
	actionID := func(command *cli.Command) (int64, error) {
		id, err := strconv.ParseInt(command.Args().First(), 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid action id %q", command.Args().First())
		}
		return id, nil
	}
	return &cli.Command{
		Name:  "action",
		Usage: "Pause or resume a single flow action",
		Commands: []*cli.Command{
			{
				Name:      "deactivate",
				ArgsUsage: "<action-id>",
				Action: withApp(func(ctx context.Context, app *courseflow.App, command *cli.Command) error {
					id, err := actionID(command)
					if err != nil {
						return err
					}
					skipped, err := app.Control.DeactivateAction(ctx, id)
					if err != nil {
						return err
					}
					slog.InfoContext(ctx, "Flow action deactivated", "action_id", id, "records_skipped", len(skipped))
					return nil
				}),
			},
			{
				Name:      "activate",
				ArgsUsage: "<action-id>",
				Action: withApp(func(ctx context.Context, app *courseflow.App, command *cli.Command) error {
					id, err := actionID(command)
					if err != nil {
						return err
					}
					if err := app.Control.ActivateAction(ctx, id); err != nil {
						return err
					}
					slog.InfoContext(ctx, "Flow action activated", "action_id", id)
					return nil
				}),
			},
		},
	}
}
