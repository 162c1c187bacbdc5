package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		groups bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "groups",
			Aliases:     []string{"g"},
			Usage:       "List alert groups instead of individual alerts",
			Sources:     cli.EnvVars("ALERT_RCA_LIST_GROUPS"),
			Destination: &groups,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List alerts or alert groups",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			if groups {
				items, err := repo.ListGroups(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to list groups")
				}
				for _, g := range items {
					fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%d alerts\n",
						g.ID, g.Title, g.Severity, len(g.AlertIDs))
				}
				return nil
			}

			alerts, err := repo.ListAlerts(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list alerts")
			}
			for _, a := range alerts {
				group := "-"
				if a.GroupID != "" {
					group = string(a.GroupID)
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Title, a.Severity, a.Status, group)
			}

			return nil
		},
	}
}
