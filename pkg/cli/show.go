package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg     config
		groupID model.GroupID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "group-id",
			Aliases:     []string{"id"},
			Usage:       "Alert group ID to show",
			Sources:     cli.EnvVars("ALERT_RCA_GROUP_ID"),
			Destination: (*string)(&groupID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show detailed information of an alert group",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			group, err := repo.GetGroup(ctx, groupID)
			if err != nil {
				return goerr.Wrap(err, "failed to get group")
			}

			alerts, err := repo.ListAlertsByGroup(ctx, groupID)
			if err != nil {
				return goerr.Wrap(err, "failed to list group alerts")
			}

			output := map[string]any{
				"group":  group,
				"alerts": alerts,
			}

			rca, err := repo.GetRCAByGroup(ctx, groupID)
			switch {
			case err == nil:
				output["rca"] = rca
			case errors.Is(err, model.ErrRCANotFound):
				// no RCA yet
			default:
				return goerr.Wrap(err, "failed to get RCA")
			}

			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal group")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
			return nil
		},
	}
}
