package rca

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// Search runs a free-text query against the historical-rca namespace. The
// relevance floor is not applied here; callers see raw ranked results.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) ([]*vector.Hit, error) {
	if query == "" {
		return nil, goerr.New("search query is empty")
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	embedding, err := p.gemini.Embedding(ctx, query, p.cfg.EmbeddingDimensions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	return p.index.Query(ctx, vector.NamespaceHistoricalRCA, embedding, topK)
}
