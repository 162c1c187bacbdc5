package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"google.golang.org/genai"
)

// Gemini covers both external model capabilities the core depends on: text
// embedding and text generation. Both are network calls that may time out
// or become unavailable; callers own retry policy.
type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Embedding(ctx context.Context, text string, dimensions int) ([]float32, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content")
	}
	return resp, nil
}

// Embedding maps text to a fixed-length vector. The output dimensionality is
// fixed per deployment; the vector index rejects vectors of any other length.
func (g *GeminiClient) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if dimensions > 0 {
		dims := int32(dimensions)
		config.OutputDimensionality = &dims
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), config)
	if err != nil {
		return nil, goerr.Wrap(model.ErrDependencyUnavailable, "failed to embed content", goerr.Value("cause", err))
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response")
	}

	return resp.Embeddings[0].Values, nil
}
