package rca

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rootiq-ai/alert-rca-system/pkg/model"
)

// BuildRetrievalQuery summarizes a group's member alerts into the text used
// to query the historical-rca namespace. The concatenation is deterministic:
// same members, same query.
func BuildRetrievalQuery(group *model.AlertGroup, alerts []*model.Alert) string {
	var parts []string

	titles := make([]string, 0, len(alerts))
	for _, a := range alerts {
		titles = append(titles, a.Title)
	}
	if len(titles) > 5 {
		titles = titles[:5]
	}
	parts = append(parts, "Alert Titles: "+strings.Join(titles, "; "))

	if sources := uniqueSorted(alerts, func(a *model.Alert) string { return a.SourceSystem }); len(sources) > 0 {
		parts = append(parts, "Source Systems: "+strings.Join(sources, ", "))
	}
	if severities := uniqueSorted(alerts, func(a *model.Alert) string { return string(a.Severity) }); len(severities) > 0 {
		parts = append(parts, "Severities: "+strings.Join(severities, ", "))
	}
	if metrics := uniqueSorted(alerts, func(a *model.Alert) string { return a.MetricName }); len(metrics) > 0 {
		parts = append(parts, "Metrics: "+strings.Join(metrics, ", "))
	}

	deviations := metricDeviations(alerts)
	if len(deviations) > 0 {
		parts = append(parts, "Metric Deviations: "+strings.Join(deviations, "; "))
	}

	return strings.Join(parts, "\n")
}

// DocumentText composes the searchable document for a closed RCA. This is
// the text embedded into the historical-rca namespace, so its shape directly
// determines future retrieval quality.
func DocumentText(rca *model.RCA, alerts []*model.Alert) string {
	var parts []string

	parts = append(parts, "Title: "+rca.Title)
	parts = append(parts, "Root Cause: "+rca.RootCause)
	if rca.ImpactAnalysis != "" {
		parts = append(parts, "Impact Analysis: "+rca.ImpactAnalysis)
	}
	if rca.RecommendedActions != "" {
		parts = append(parts, "Recommended Actions: "+rca.RecommendedActions)
	}
	parts = append(parts, "Severity: "+string(rca.Severity))
	if len(rca.AffectedSystems) > 0 {
		parts = append(parts, "Affected Systems: "+strings.Join(rca.AffectedSystems, ", "))
	}

	parts = append(parts, fmt.Sprintf("Alert Count: %d", len(alerts)))

	titles := make([]string, 0, len(alerts))
	for _, a := range alerts {
		titles = append(titles, a.Title)
	}
	if len(titles) > 5 {
		titles = titles[:5]
	}
	if len(titles) > 0 {
		parts = append(parts, "Alert Titles: "+strings.Join(titles, "; "))
	}

	if sources := uniqueSorted(alerts, func(a *model.Alert) string { return a.SourceSystem }); len(sources) > 0 {
		parts = append(parts, "Source Systems: "+strings.Join(sources, ", "))
	}
	if metrics := uniqueSorted(alerts, func(a *model.Alert) string { return a.MetricName }); len(metrics) > 0 {
		parts = append(parts, "Metrics: "+strings.Join(metrics, ", "))
	}

	return strings.Join(parts, "\n")
}

func uniqueSorted(alerts []*model.Alert, key func(*model.Alert) string) []string {
	seen := map[string]bool{}
	var values []string
	for _, a := range alerts {
		v := key(a)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func metricDeviations(alerts []*model.Alert) []string {
	var deviations []string
	for _, a := range alerts {
		if a.MetricName == "" || a.MetricValue == nil || a.Threshold == nil {
			continue
		}
		deviations = append(deviations, fmt.Sprintf("%s=%.4g (threshold %.4g)", a.MetricName, *a.MetricValue, *a.Threshold))
	}
	return deviations
}
