package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		query string
		topK  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Free-text query over closed incident knowledge",
			Sources:     cli.EnvVars("ALERT_RCA_QUERY"),
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of results",
			Value:       5,
			Destination: &topK,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search historical closed incidents by similarity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			pipeline, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}

			hits, err := pipeline.Search(ctx, query, int(topK))
			if err != nil {
				return goerr.Wrap(err, "failed to search incidents")
			}

			if len(hits) == 0 {
				fmt.Fprintln(c.Root().Writer, "No similar incidents found")
				return nil
			}

			for _, hit := range hits {
				title := ""
				if v, ok := hit.Payload["title"].(string); ok {
					title = v
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%.4f\t%s\n", hit.ID, hit.Score, title)
			}
			return nil
		},
	}
}
