package grouping

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// candidate is an existing group eligible to absorb the alert.
type candidate struct {
	group *model.AlertGroup
	score float64
}

// Assign computes the alert's embedding, decides whether it joins an
// existing group or founds a new one, and persists both the alert and the
// group change. The decision retries a bounded number of times when it loses
// a compare-and-swap race.
func (e *Engine) Assign(ctx context.Context, alert *model.Alert) (*model.GroupAssignment, error) {
	e.opMu.RLock()
	defer e.opMu.RUnlock()

	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if alert.ID == "" {
		alert.ID = model.NewAlertID()
	}
	if alert.Status == "" {
		alert.Status = model.AlertStatusActive
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	if len(alert.Embedding) == 0 {
		embedding, err := e.gemini.Embedding(ctx, alert.Text(), e.cfg.EmbeddingDimensions)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed alert", goerr.Value("alert_id", alert.ID))
		}
		alert.Embedding = firestore.Vector32(embedding)
	}

	assignment, err := e.assignEmbedded(ctx, alert)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("alert assigned",
		"alert_id", alert.ID,
		"group_id", assignment.GroupID,
		"created_new", assignment.CreatedNew,
		"similarity", assignment.Similarity,
	)

	return assignment, nil
}

// assignEmbedded runs the assignment decision for an alert whose embedding
// is already computed. Regroup replays alerts through this path so that
// incremental and bulk grouping share one procedure.
func (e *Engine) assignEmbedded(ctx context.Context, alert *model.Alert) (*model.GroupAssignment, error) {
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		best, err := e.bestCandidate(ctx, alert)
		if err != nil {
			return nil, err
		}

		if best != nil {
			assignment, err := e.join(ctx, alert, best)
			if err == nil {
				return assignment, nil
			}
			if errors.Is(err, model.ErrConcurrentUpdate) || errors.Is(err, errCandidateStale) {
				continue
			}
			return nil, err
		}

		assignment, err := e.createGroup(ctx, alert)
		if err == nil {
			return assignment, nil
		}
		if errors.Is(err, model.ErrConcurrentUpdate) || errors.Is(err, errCandidateStale) {
			continue
		}
		return nil, err
	}

	return nil, goerr.Wrap(model.ErrConcurrentUpdate, "assignment kept losing races",
		goerr.Value("alert_id", alert.ID), goerr.Value("attempts", e.cfg.MaxRetries+1))
}

// errCandidateStale signals that the chosen group changed between decision
// and commit in a way that invalidates the decision; the caller re-decides.
var errCandidateStale = goerr.New("candidate group changed since decision")

// maxCandidateLimit caps how far a saturated candidate query widens;
// Firestore FindNearest rejects larger limits.
const maxCandidateLimit = 1000

// bestCandidate returns the most similar group within the grouping window,
// or nil when no group clears the threshold. Ties at equal score resolve by
// most recent last-updated timestamp, then by lowest group ID.
func (e *Engine) bestCandidate(ctx context.Context, alert *model.Alert) (*candidate, error) {
	limit := e.cfg.CandidateLimit
	for {
		hits, err := e.index.Query(ctx, vector.NamespaceAlertGrouping, alert.Embedding, limit)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to query grouping index")
		}

		var best *candidate
		for _, hit := range hits {
			if hit.Score < e.cfg.SimilarityThreshold {
				continue
			}

			group, err := e.repo.GetGroup(ctx, model.GroupID(hit.ID))
			if err != nil {
				// The index is eventually consistent with the repository; a
				// vector record may outlive its group.
				if errors.Is(err, model.ErrGroupNotFound) {
					continue
				}
				return nil, err
			}

			if !e.withinWindow(alert, group) {
				continue
			}

			if best == nil || better(hit.Score, group, best) {
				best = &candidate{group: group, score: hit.Score}
			}
		}

		if best != nil {
			return best, nil
		}

		// Stale records and out-of-window groups can saturate the result
		// set and hide an eligible group ranked below them. Widen the query
		// while the tail still clears the threshold.
		if len(hits) < limit || limit >= maxCandidateLimit ||
			hits[len(hits)-1].Score < e.cfg.SimilarityThreshold {
			return nil, nil
		}
		limit *= 4
		if limit > maxCandidateLimit {
			limit = maxCandidateLimit
		}
	}
}

// withinWindow reports whether the alert's timestamp lies within the
// grouping window of the group's last update. The boundary is inclusive.
func (e *Engine) withinWindow(alert *model.Alert, group *model.AlertGroup) bool {
	delta := alert.CreatedAt.Sub(group.UpdatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= e.cfg.Window
}

func better(score float64, group *model.AlertGroup, current *candidate) bool {
	if score != current.score {
		return score > current.score
	}
	if !group.UpdatedAt.Equal(current.group.UpdatedAt) {
		return group.UpdatedAt.After(current.group.UpdatedAt)
	}
	return group.ID < current.group.ID
}

// join appends the alert to the candidate group under the group's lock. The
// group is re-read before committing; if it moved outside the window in the
// meantime the decision is stale.
func (e *Engine) join(ctx context.Context, alert *model.Alert, best *candidate) (*model.GroupAssignment, error) {
	unlock := e.locks.lock(best.group.ID)
	defer unlock()

	group, err := e.repo.GetGroup(ctx, best.group.ID)
	if err != nil {
		if errors.Is(err, model.ErrGroupNotFound) {
			return nil, errCandidateStale
		}
		return nil, err
	}

	if !e.withinWindow(alert, group) {
		return nil, errCandidateStale
	}

	group.AlertIDs = append(group.AlertIDs, alert.ID)
	group.Severity = model.MaxSeverity(group.Severity, alert.Severity)
	if alert.CreatedAt.After(group.UpdatedAt) {
		group.UpdatedAt = alert.CreatedAt
	}
	// Representative embedding stays the founding alert's embedding.

	alert.GroupID = group.ID
	if err := e.repo.UpdateGroupWithAlert(ctx, group, alert); err != nil {
		return nil, err
	}

	return &model.GroupAssignment{GroupID: group.ID, Similarity: best.score}, nil
}

const groupTitleLimit = 100

// createGroup founds a new group for the alert. The decision is re-checked
// under createMu so that two similar alerts racing through the no-candidate
// path cannot create duplicate groups.
func (e *Engine) createGroup(ctx context.Context, alert *model.Alert) (*model.GroupAssignment, error) {
	e.createMu.Lock()
	defer e.createMu.Unlock()

	best, err := e.bestCandidate(ctx, alert)
	if err != nil {
		return nil, err
	}
	if best != nil {
		// Another assignment founded a matching group first.
		return e.join(ctx, alert, best)
	}

	title := alert.Title
	if len(title) > groupTitleLimit {
		title = title[:groupTitleLimit]
	}

	group := &model.AlertGroup{
		ID:          model.NewGroupID(),
		Title:       "Alert Group: " + title,
		Description: "Automatically created group for alerts similar to: " + alert.Title,
		Severity:    alert.Severity,
		Embedding:   alert.Embedding,
		AlertIDs:    []model.AlertID{alert.ID},
		CreatedAt:   alert.CreatedAt,
		UpdatedAt:   alert.CreatedAt,
	}

	alert.GroupID = group.ID
	if err := e.repo.CreateGroupWithAlert(ctx, group, alert); err != nil {
		return nil, err
	}

	record := &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        string(group.ID),
		Embedding: group.Embedding,
		Payload: map[string]any{
			"title":    group.Title,
			"severity": string(group.Severity),
		},
	}
	if err := e.index.Upsert(ctx, record); err != nil {
		return nil, goerr.Wrap(err, "failed to index group embedding", goerr.Value("group_id", group.ID))
	}

	return &model.GroupAssignment{GroupID: group.ID, CreatedNew: true}, nil
}
