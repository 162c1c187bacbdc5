package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/urfave/cli/v3"
)

// alertInput is the accepted JSON shape for ingestion. Timestamps default to
// the current time when omitted.
type alertInput struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Severity     string            `json:"severity"`
	SourceSystem string            `json:"source_system"`
	Labels       map[string]string `json:"labels"`
	MetricName   string            `json:"metric_name"`
	MetricValue  *float64          `json:"metric_value"`
	Threshold    *float64          `json:"threshold"`
	CreatedAt    *time.Time        `json:"created_at"`
}

func (x *alertInput) toAlert() *model.Alert {
	alert := &model.Alert{
		Title:        x.Title,
		Description:  x.Description,
		Severity:     model.Severity(x.Severity),
		SourceSystem: x.SourceSystem,
		Labels:       x.Labels,
		MetricName:   x.MetricName,
		MetricValue:  x.MetricValue,
		Threshold:    x.Threshold,
	}
	if x.CreatedAt != nil {
		alert.CreatedAt = *x.CreatedAt
	}
	return alert
}

func ingestCommand() *cli.Command {
	var (
		cfg       config
		inputPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file containing one alert or an array of alerts",
			Sources:     cli.EnvVars("ALERT_RCA_INPUT"),
			Destination: &inputPath,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest alerts and assign them to incident groups",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			if inputPath == "" {
				return goerr.New("input file path is required")
			}

			inputs, err := readAlertInputs(inputPath)
			if err != nil {
				return err
			}

			engine, err := cfg.newGroupingEngine(ctx)
			if err != nil {
				return err
			}

			for _, input := range inputs {
				alert := input.toAlert()
				assignment, err := engine.Assign(ctx, alert)
				if err != nil {
					return goerr.Wrap(err, "failed to ingest alert", goerr.Value("title", input.Title))
				}

				verb := "joined"
				if assignment.CreatedNew {
					verb = "created"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s group %s (similarity %.4f)\n",
					alert.ID, verb, assignment.GroupID, assignment.Similarity)
			}

			return nil
		},
	}
}

// readAlertInputs parses the input file as either a single alert object or an
// array of alerts.
func readAlertInputs(path string) ([]*alertInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read input file", goerr.Value("path", path))
	}

	var many []*alertInput
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}

	var one alertInput
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, goerr.Wrap(err, "failed to parse JSON", goerr.Value("path", path))
	}
	return []*alertInput{&one}, nil
}
