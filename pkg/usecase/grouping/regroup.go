package grouping

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// RegroupResult summarizes a bulk regroup run.
type RegroupResult struct {
	Processed int
	Joined    int
	NewGroups int
}

// Regroup recomputes all groups from an empty state by replaying every
// stored alert through the per-alert assignment procedure in ascending
// timestamp order. Stored embeddings are reused, so for a fixed alert
// sequence the result is identical to incremental assignment.
//
// Regroup holds the engine's write lock for its whole duration; concurrent
// Assign calls wait.
func (e *Engine) Regroup(ctx context.Context) (*RegroupResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	alerts, err := e.repo.ListAlerts(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list alerts for regroup")
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})

	if err := e.repo.ClearGroups(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to clear groups")
	}
	if err := e.index.Clear(ctx, vector.NamespaceAlertGrouping); err != nil {
		return nil, goerr.Wrap(err, "failed to clear grouping namespace")
	}

	result := &RegroupResult{}
	for _, alert := range alerts {
		alert.GroupID = ""

		// Alerts ingested through Assign always carry an embedding;
		// backfill for any that predate embedding support.
		if len(alert.Embedding) == 0 {
			embedding, err := e.gemini.Embedding(ctx, alert.Text(), e.cfg.EmbeddingDimensions)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to embed alert during regroup", goerr.Value("alert_id", alert.ID))
			}
			alert.Embedding = firestore.Vector32(embedding)
		}

		assignment, err := e.assignEmbedded(ctx, alert)
		if err != nil {
			return nil, goerr.Wrap(err, "regroup failed mid-replay",
				goerr.Value("alert_id", alert.ID), goerr.Value("processed", result.Processed))
		}

		result.Processed++
		if assignment.CreatedNew {
			result.NewGroups++
		} else {
			result.Joined++
		}
	}

	logging.From(ctx).Info("regroup completed",
		"processed", result.Processed,
		"joined", result.Joined,
		"new_groups", result.NewGroups,
	)

	return result, nil
}
