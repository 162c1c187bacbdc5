package rca

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

//go:embed prompt/rca.md
var rcaPromptRaw string

var rcaPromptTmpl = template.Must(template.New("rca").Parse(rcaPromptRaw))

const summaryAlertLimit = 10

// assemblePrompt renders the generation prompt within the configured size
// budget. Historical context is added in descending similarity order; when
// the budget is exceeded, the lowest-similarity entries are dropped first.
// The returned references list exactly the incidents that stayed in the
// prompt.
func (p *Pipeline) assemblePrompt(group *model.AlertGroup, alerts []*model.Alert, hits []*vector.Hit) (string, []model.HistoricalRef, error) {
	summary := alertSummary(group, alerts)

	// Hits arrive ordered by descending score; keep a defensive sort so
	// truncation order never depends on index behavior.
	sorted := append([]*vector.Hit(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	for keep := len(sorted); ; keep-- {
		included := sorted[:keep]

		prompt, err := renderPrompt(summary, included)
		if err != nil {
			return "", nil, err
		}

		if len(prompt) <= p.cfg.PromptBudget || keep == 0 {
			refs := make([]model.HistoricalRef, 0, len(included))
			for _, hit := range included {
				refs = append(refs, model.HistoricalRef{
					RCAID:   model.RCAID(hit.ID),
					Score:   hit.Score,
					Summary: payloadString(hit.Payload, "title"),
				})
			}
			return prompt, refs, nil
		}
	}
}

func renderPrompt(summary string, hits []*vector.Hit) (string, error) {
	var buf bytes.Buffer
	if err := rcaPromptTmpl.Execute(&buf, map[string]any{
		"AlertSummary":      summary,
		"HistoricalContext": historicalContext(hits),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute rca prompt template")
	}
	return buf.String(), nil
}

// alertSummary renders the structured alert summary section. Deterministic:
// the same group and members always produce the same text.
func alertSummary(group *model.AlertGroup, alerts []*model.Alert) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Alert Count: %d", len(alerts)))
	parts = append(parts, "Group Severity: "+string(group.Severity))

	counts := map[model.Severity]int{}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	var dist []string
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
		if counts[sev] > 0 {
			dist = append(dist, fmt.Sprintf("%s=%d", sev, counts[sev]))
		}
	}
	parts = append(parts, "Severity Distribution: "+strings.Join(dist, ", "))

	if sources := uniqueSorted(alerts, func(a *model.Alert) string { return a.SourceSystem }); len(sources) > 0 {
		parts = append(parts, "Source Systems: "+strings.Join(sources, ", "))
	}

	if len(alerts) > 0 {
		first := alerts[0].CreatedAt
		last := alerts[len(alerts)-1].CreatedAt
		parts = append(parts, fmt.Sprintf("Time Range: %s to %s",
			first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339)))
	}

	parts = append(parts, "", "Individual Alerts:")
	for i, a := range alerts {
		if i == summaryAlertLimit {
			parts = append(parts, fmt.Sprintf("... and %d more similar alerts", len(alerts)-summaryAlertLimit))
			break
		}

		line := fmt.Sprintf("%d. [%s] %s (source: %s, time: %s)",
			i+1, a.Severity, a.Title, a.SourceSystem, a.CreatedAt.UTC().Format(time.RFC3339))
		parts = append(parts, line)
		if a.Description != "" {
			desc := a.Description
			if len(desc) > 200 {
				desc = desc[:200] + "..."
			}
			parts = append(parts, "   Description: "+desc)
		}
		if a.MetricName != "" && a.MetricValue != nil {
			metric := fmt.Sprintf("   Metric: %s = %.4g", a.MetricName, *a.MetricValue)
			if a.Threshold != nil {
				metric += fmt.Sprintf(" (threshold %.4g)", *a.Threshold)
			}
			parts = append(parts, metric)
		}
	}

	return strings.Join(parts, "\n")
}

// historicalContext renders retrieved incidents for the prompt. Empty input
// yields an empty string, which removes the section entirely (cold start).
func historicalContext(hits []*vector.Hit) string {
	if len(hits) == 0 {
		return ""
	}

	parts := []string{"Based on similar historical incidents:"}
	for i, hit := range hits {
		parts = append(parts, fmt.Sprintf("\n%d. Similar Incident (similarity: %.2f):", i+1, hit.Score))
		if severity := payloadString(hit.Payload, "severity"); severity != "" {
			parts = append(parts, "   - Severity: "+severity)
		}
		if count := payloadString(hit.Payload, "alert_count"); count != "" {
			parts = append(parts, "   - Alert Count: "+count)
		}
		if systems := payloadString(hit.Payload, "source_systems"); systems != "" {
			parts = append(parts, "   - Systems: "+systems)
		}
		if doc := payloadString(hit.Payload, "document"); doc != "" {
			parts = append(parts, "   - Narrative: "+doc)
		}
	}

	return strings.Join(parts, "\n")
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
