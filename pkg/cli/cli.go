package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "alert-rca",
		Usage: "Alert grouping and root cause analysis",
		Commands: []*cli.Command{
			ingestCommand(),
			listCommand(),
			showCommand(),
			resolveCommand(),
			regroupCommand(),
			searchCommand(),
			rcaCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
