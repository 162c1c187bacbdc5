package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func regroupCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "regroup",
		Usage: "Rebuild all alert groups from stored alerts",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			engine, err := cfg.newGroupingEngine(ctx)
			if err != nil {
				return err
			}

			result, err := engine.Regroup(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to regroup alerts")
			}

			fmt.Fprintf(c.Root().Writer, "Regrouped %d alerts: %d joined existing groups, %d new groups\n",
				result.Processed, result.Joined, result.NewGroups)
			return nil
		},
	}
}
