package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/urfave/cli/v3"
)

func rcaCommand() *cli.Command {
	return &cli.Command{
		Name:  "rca",
		Usage: "Root cause analysis operations",
		Commands: []*cli.Command{
			rcaGenerateCommand(),
			rcaStatusCommand(),
			rcaHistoryCommand(),
			rcaVectorizeClosedCommand(),
		},
	}
}

func rcaGenerateCommand() *cli.Command {
	var (
		cfg     config
		groupID model.GroupID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "group-id",
			Aliases:     []string{"id"},
			Usage:       "Alert group ID to analyze",
			Sources:     cli.EnvVars("ALERT_RCA_GROUP_ID"),
			Destination: (*string)(&groupID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a root cause analysis for an alert group",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			pipeline, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			sp.Suffix = " Generating root cause analysis..."
			sp.Start()
			rca, err := pipeline.Generate(ctx, groupID)
			sp.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to generate RCA")
			}

			data, err := json.MarshalIndent(rca, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal RCA")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
			return nil
		},
	}
}

func rcaStatusCommand() *cli.Command {
	var (
		cfg    config
		rcaID  model.RCAID
		status string
		actor  string
		reason string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "rca-id",
			Aliases:     []string{"id"},
			Usage:       "RCA ID to transition",
			Sources:     cli.EnvVars("ALERT_RCA_RCA_ID"),
			Destination: (*string)(&rcaID),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "status",
			Aliases:     []string{"s"},
			Usage:       "Target status (open, in_progress, closed)",
			Destination: &status,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "actor",
			Usage:       "Who performs the transition",
			Sources:     cli.EnvVars("ALERT_RCA_ACTOR"),
			Destination: &actor,
		},
		&cli.StringFlag{
			Name:        "reason",
			Aliases:     []string{"r"},
			Usage:       "Reason for the transition",
			Destination: &reason,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "status",
		Usage: "Transition an RCA to a new lifecycle status",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			manager, err := cfg.newLifecycle(ctx)
			if err != nil {
				return err
			}

			rca, err := manager.Transition(ctx, rcaID, model.RCAStatus(status), actor, reason)
			if err != nil {
				return goerr.Wrap(err, "failed to transition RCA")
			}

			fmt.Fprintf(c.Root().Writer, "RCA %s is now %s\n", rca.ID, rca.Status)
			return nil
		},
	}
}

func rcaHistoryCommand() *cli.Command {
	var (
		cfg   config
		rcaID model.RCAID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "rca-id",
			Aliases:     []string{"id"},
			Usage:       "RCA ID to show history of",
			Sources:     cli.EnvVars("ALERT_RCA_RCA_ID"),
			Destination: (*string)(&rcaID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "Show the status transition history of an RCA",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			manager, err := cfg.newLifecycle(ctx)
			if err != nil {
				return err
			}

			entries, err := manager.History(ctx, rcaID)
			if err != nil {
				return goerr.Wrap(err, "failed to get history")
			}

			for _, e := range entries {
				from := string(e.PreviousStatus)
				if from == "" {
					from = "-"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s -> %s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), from, e.NewStatus, e.Actor, e.Reason)
			}
			return nil
		},
	}
}

func rcaVectorizeClosedCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "vectorize-closed",
		Usage: "Backfill vector records for closed RCAs missed at close time",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			manager, err := cfg.newLifecycle(ctx)
			if err != nil {
				return err
			}

			result, err := manager.VectorizeClosed(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to vectorize closed RCAs")
			}

			fmt.Fprintf(c.Root().Writer, "Closed RCAs: %d, vectorized now: %d, already indexed: %d\n",
				result.Closed, result.Vectorized, result.Skipped)
			return nil
		},
	}
}
