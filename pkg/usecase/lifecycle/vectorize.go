package lifecycle

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/usecase/rca"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// VectorizeResult summarizes a backfill run.
type VectorizeResult struct {
	Closed     int // closed RCAs inspected
	Vectorized int // records written in this run
	Skipped    int // already vectorized
}

// VectorizeClosed backfills vector records for closed RCAs that are missing
// one. Idempotent: already-vectorized RCAs are skipped, and upserts are
// keyed by RCA ID, so re-running never creates duplicates.
func (m *Manager) VectorizeClosed(ctx context.Context) (*VectorizeResult, error) {
	closed := model.RCAStatusClosed
	rcas, err := m.repo.ListRCAs(ctx, &closed)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list closed rcas")
	}

	result := &VectorizeResult{Closed: len(rcas)}
	for _, candidate := range rcas {
		done, err := m.vectorizeOnce(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if done {
			result.Vectorized++
		} else {
			result.Skipped++
		}
	}

	logging.From(ctx).Info("vectorize-closed completed",
		"closed", result.Closed,
		"vectorized", result.Vectorized,
		"skipped", result.Skipped,
	)

	return result, nil
}

// vectorizeOnce re-reads the RCA under its lock and vectorizes it if still
// needed. Returns whether a record was written.
func (m *Manager) vectorizeOnce(ctx context.Context, id model.RCAID) (bool, error) {
	unlock := m.lock(id)
	defer unlock()

	current, err := m.repo.GetRCA(ctx, id)
	if err != nil {
		return false, err
	}
	if current.Status != model.RCAStatusClosed || current.Vectorized {
		return false, nil
	}

	if err := m.vectorize(ctx, current); err != nil {
		return false, goerr.Wrap(err, "failed to vectorize closed rca", goerr.Value("rca_id", id))
	}
	return true, nil
}

// vectorize embeds the RCA document and upserts it into the historical-rca
// namespace, then marks the RCA vectorized. Caller must hold the RCA's lock.
func (m *Manager) vectorize(ctx context.Context, target *model.RCA) error {
	alerts, err := m.repo.ListAlertsByGroup(ctx, target.GroupID)
	if err != nil {
		return err
	}

	document := rca.DocumentText(target, alerts)

	embedding, err := m.gemini.Embedding(ctx, document, m.cfg.EmbeddingDimensions)
	if err != nil {
		return goerr.Wrap(err, "failed to embed rca document", goerr.Value("rca_id", target.ID))
	}

	sources := map[string]bool{}
	for _, a := range alerts {
		sources[a.SourceSystem] = true
	}
	sourceList := make([]string, 0, len(sources))
	for s := range sources {
		sourceList = append(sourceList, s)
	}
	sort.Strings(sourceList)

	record := &vector.Record{
		Namespace: vector.NamespaceHistoricalRCA,
		ID:        string(target.ID),
		Embedding: embedding,
		Payload: map[string]any{
			"title":          target.Title,
			"severity":       string(target.Severity),
			"alert_count":    int64(len(alerts)),
			"source_systems": strings.Join(sourceList, ", "),
			"document":       document,
			"group_id":       string(target.GroupID),
		},
	}
	if err := m.index.Upsert(ctx, record); err != nil {
		return err
	}

	target.Vectorized = true
	if err := m.repo.UpdateRCA(ctx, target); err != nil {
		return goerr.Wrap(err, "failed to mark rca vectorized", goerr.Value("rca_id", target.ID))
	}

	return nil
}
