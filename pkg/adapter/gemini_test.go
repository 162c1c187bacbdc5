package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/adapter"
	"google.golang.org/genai"
)

func setupGemini(t *testing.T) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1")
	gt.NoError(t, err)
	return client
}

func TestGenerateContent(t *testing.T) {
	client := setupGemini(t)
	ctx := context.Background()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: "Summarize in one sentence: the database connection pool was exhausted."},
			},
		},
	}

	resp, err := client.GenerateContent(ctx, contents, nil)
	if err != nil {
		t.Fatal("failed to call GenerateContent", err)
	}

	if resp == nil ||
		len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		t.Fatal("unexpected response")
	}

	t.Log("response:", resp.Candidates[0].Content.Parts[0].Text)
}

func TestEmbedding(t *testing.T) {
	client := setupGemini(t)
	ctx := context.Background()

	embedding, err := client.Embedding(ctx, "High CPU usage on web-01", 768)
	gt.NoError(t, err)
	gt.A(t, embedding).Length(768)
}
