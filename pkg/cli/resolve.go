package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/urfave/cli/v3"
)

func resolveCommand() *cli.Command {
	var (
		cfg     config
		alertID model.AlertID
		ack     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "alert-id",
			Aliases:     []string{"id"},
			Usage:       "Alert ID to resolve",
			Sources:     cli.EnvVars("ALERT_RCA_ALERT_ID"),
			Destination: (*string)(&alertID),
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "ack",
			Usage:       "Acknowledge the alert instead of resolving it",
			Destination: &ack,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "resolve",
		Usage: "Mark an alert as resolved (or acknowledged with --ack)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			alert, err := repo.GetAlert(ctx, alertID)
			if err != nil {
				return goerr.Wrap(err, "failed to get alert")
			}

			now := time.Now()
			if ack {
				alert.Status = model.AlertStatusAcknowledged
			} else {
				alert.Status = model.AlertStatusResolved
				alert.ResolvedAt = &now
			}
			alert.UpdatedAt = now

			if err := repo.UpdateAlert(ctx, alert); err != nil {
				return goerr.Wrap(err, "failed to update alert")
			}

			fmt.Fprintf(c.Root().Writer, "Alert %s is now %s\n", alert.ID, alert.Status)
			return nil
		},
	}
}
