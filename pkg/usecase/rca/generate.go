package rca

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
	"google.golang.org/genai"
)

// Generate produces a draft RCA for the group: build a retrieval query from
// the members, fetch similar closed incidents, assemble a bounded prompt,
// invoke the model, and persist the result with status open.
//
// Re-generation before closure replaces the content of the existing RCA in
// place (same ID, lifecycle state and history preserved). Generation against
// a group whose RCA is already closed is rejected. Concurrent calls for the
// same group are serialized.
func (p *Pipeline) Generate(ctx context.Context, groupID model.GroupID) (*model.RCA, error) {
	unlock := p.lock(groupID)
	defer unlock()

	group, err := p.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	alerts, err := p.repo.ListAlertsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, goerr.Wrap(model.ErrEmptyGroup, "cannot generate rca", goerr.Value("group_id", groupID))
	}

	existing, err := p.repo.GetRCAByGroup(ctx, groupID)
	if err != nil && !errors.Is(err, model.ErrRCANotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == model.RCAStatusClosed {
		return nil, goerr.Wrap(model.ErrRCAClosed, "closed rca cannot be regenerated",
			goerr.Value("group_id", groupID), goerr.Value("rca_id", existing.ID))
	}

	hits, err := p.retrieve(ctx, group, alerts)
	if err != nil {
		return nil, err
	}

	prompt, refs, err := p.assemblePrompt(group, alerts, hits)
	if err != nil {
		return nil, err
	}

	rawText, err := p.invokeModel(ctx, prompt)
	if err != nil {
		return nil, err
	}

	rca := parseResponse(rawText)
	rca.GroupID = groupID
	rca.References = refs
	rca.Severity = clampSeverity(rca.Severity, group.Severity)

	now := time.Now()
	if existing != nil {
		rca.ID = existing.ID
		rca.Status = existing.Status
		rca.Version = existing.Version
		rca.CreatedAt = existing.CreatedAt
		rca.UpdatedAt = now

		if err := p.repo.UpdateRCA(ctx, rca); err != nil {
			return nil, err
		}
	} else {
		rca.ID = model.NewRCAID()
		rca.Status = model.RCAStatusOpen
		rca.CreatedAt = now
		rca.UpdatedAt = now

		if err := p.repo.PutRCA(ctx, rca); err != nil {
			return nil, err
		}
	}

	p.archive(ctx, rca.ID, prompt, rawText)

	logging.From(ctx).Info("rca generated",
		"rca_id", rca.ID,
		"group_id", groupID,
		"references", len(refs),
		"confidence", rca.Confidence,
	)

	return rca, nil
}

// retrieve queries the historical-rca namespace and applies the relevance
// floor. Zero results is a valid cold-start outcome.
func (p *Pipeline) retrieve(ctx context.Context, group *model.AlertGroup, alerts []*model.Alert) ([]*vector.Hit, error) {
	query := BuildRetrievalQuery(group, alerts)

	embedding, err := p.gemini.Embedding(ctx, query, p.cfg.EmbeddingDimensions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed retrieval query", goerr.Value("group_id", group.ID))
	}

	hits, err := p.index.Query(ctx, vector.NamespaceHistoricalRCA, embedding, p.cfg.TopK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query historical incidents", goerr.Value("group_id", group.ID))
	}

	var relevant []*vector.Hit
	for _, hit := range hits {
		if hit.Score >= p.cfg.RelevanceFloor {
			relevant = append(relevant, hit)
		}
	}
	return relevant, nil
}

// invokeModel calls the generative model with bounded retries and
// exponential backoff. Caller cancellation aborts immediately; exhausted
// retries surface as ErrGenerationFailed.
func (p *Pipeline) invokeModel(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.cfg.Temperature),
		MaxOutputTokens:  p.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.cfg.RetryWait << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			logging.From(ctx).Warn("retrying rca generation", "attempt", attempt+1, "cause", lastErr)
		}

		text, err := p.generateOnce(ctx, contents, config)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	return "", goerr.Wrap(model.ErrGenerationFailed, "model provider exhausted retries",
		goerr.Value("attempts", p.cfg.MaxAttempts), goerr.Value("cause", lastErr))
}

func (p *Pipeline) generateOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.gemini.GenerateContent(callCtx, contents, config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.New("empty response from model")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", goerr.New("model returned no text")
	}
	return text, nil
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {
			Type:        genai.TypeString,
			Description: "Brief, descriptive title for the RCA",
		},
		"root_cause": {
			Type:        genai.TypeString,
			Description: "Detailed explanation of the root cause",
		},
		"impact_analysis": {
			Type:        genai.TypeString,
			Description: "Analysis of impact on systems, users and business",
		},
		"recommended_actions": {
			Type:        genai.TypeString,
			Description: "Specific, prioritized actions to resolve and prevent recurrence",
		},
		"affected_systems": {
			Type:        genai.TypeArray,
			Description: "List of affected systems",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"confidence": {
			Type:        genai.TypeString,
			Description: "Confidence in the analysis: high, medium or low",
		},
		"severity": {
			Type:        genai.TypeString,
			Description: "Overall severity: critical, high, medium or low",
		},
	},
	Required: []string{"title", "root_cause", "confidence"},
}

// parseResponse maps the model's JSON output onto an RCA. Unparseable output
// falls back to carrying the raw text as the root cause so a transport-level
// success never turns into a hard failure.
func parseResponse(raw string) *model.RCA {
	var data struct {
		Title              string   `json:"title"`
		RootCause          string   `json:"root_cause"`
		ImpactAnalysis     string   `json:"impact_analysis"`
		RecommendedActions string   `json:"recommended_actions"`
		AffectedSystems    []string `json:"affected_systems"`
		Confidence         string   `json:"confidence"`
		Severity           string   `json:"severity"`
	}

	if err := json.Unmarshal([]byte(raw), &data); err != nil || data.RootCause == "" {
		return &model.RCA{
			Title:      "Alert Group Analysis",
			RootCause:  raw,
			Confidence: model.ConfidenceLow,
			Narrative:  raw,
		}
	}

	title := data.Title
	if title == "" {
		title = "Alert Group Analysis"
	}

	return &model.RCA{
		Title:              title,
		RootCause:          data.RootCause,
		ImpactAnalysis:     data.ImpactAnalysis,
		RecommendedActions: data.RecommendedActions,
		AffectedSystems:    data.AffectedSystems,
		Confidence:         parseConfidence(data.Confidence),
		Severity:           model.Severity(data.Severity),
		Narrative:          raw,
	}
}

func parseConfidence(s string) model.Confidence {
	switch model.Confidence(s) {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
		return model.Confidence(s)
	default:
		return model.ConfidenceLow
	}
}

// clampSeverity falls back to the group's severity when the model omits or
// invents an unknown one.
func clampSeverity(fromModel, fromGroup model.Severity) model.Severity {
	if fromModel.Validate() == nil {
		return fromModel
	}
	return fromGroup
}

// archive saves the prompt and raw response for audit. Best effort: the
// references persisted on the RCA already make the retrieval reproducible.
func (p *Pipeline) archive(ctx context.Context, id model.RCAID, prompt, response string) {
	if p.storage == nil {
		return
	}

	artifact := map[string]string{
		"prompt":   prompt,
		"response": response,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		logging.From(ctx).Warn("failed to encode generation artifact", "rca_id", id, "error", err)
		return
	}

	w, err := p.storage.Put(ctx, "rca/"+string(id)+".json")
	if err != nil {
		logging.From(ctx).Warn("failed to open artifact writer", "rca_id", id, "error", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("failed to write generation artifact", "rca_id", id, "error", err)
		_ = w.Close()
		return
	}
	if err := w.Close(); err != nil {
		logging.From(ctx).Warn("failed to close generation artifact", "rca_id", id, "error", err)
	}
}
