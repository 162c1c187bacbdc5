package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
	"github.com/rootiq-ai/alert-rca-system/pkg/usecase/lifecycle"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	mu            sync.Mutex
	embedCalls    int
	embeddingFunc func(ctx context.Context, text string, dimensions int) ([]float32, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	if m.embeddingFunc != nil {
		return m.embeddingFunc(ctx, text, dimensions)
	}
	return []float32{1, 0}, nil
}

func (m *mockGemini) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

func setup(t *testing.T) (*lifecycle.Manager, *repository.Memory, *vector.Memory, *mockGemini, model.RCAID) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()
	index := vector.NewMemory(2)
	gemini := &mockGemini{}

	groupID := model.NewGroupID()
	gt.NoError(t, repo.CreateGroup(ctx, &model.AlertGroup{ID: groupID, Title: "g"}))
	gt.NoError(t, repo.PutAlert(ctx, &model.Alert{
		ID:           model.NewAlertID(),
		Title:        "DB pool exhausted",
		SourceSystem: "prometheus",
		Severity:     model.SeverityHigh,
		GroupID:      groupID,
		CreatedAt:    time.Now(),
	}))

	rca := &model.RCA{
		ID:        model.NewRCAID(),
		GroupID:   groupID,
		Title:     "Connection pool exhaustion",
		RootCause: "Pool size misconfigured",
		Severity:  model.SeverityHigh,
		Status:    model.RCAStatusOpen,
	}
	gt.NoError(t, repo.PutRCA(ctx, rca))

	manager := lifecycle.New(repo, index, gemini, lifecycle.Config{EmbeddingDimensions: 2})
	return manager, repo, index, gemini, rca.ID
}

func TestTransitionOpenToInProgress(t *testing.T) {
	ctx := context.Background()
	manager, repo, _, _, id := setup(t)

	rca, err := manager.Transition(ctx, id, model.RCAStatusInProgress, "alice", "taking over")
	gt.NoError(t, err)
	gt.V(t, rca.Status).Equal(model.RCAStatusInProgress)
	gt.Nil(t, rca.ClosedAt)

	entries, err := repo.ListHistory(ctx, id)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
	gt.V(t, entries[0].PreviousStatus).Equal(model.RCAStatusOpen)
	gt.V(t, entries[0].NewStatus).Equal(model.RCAStatusInProgress)
	gt.V(t, entries[0].Actor).Equal("alice")
	gt.V(t, entries[0].Reason).Equal("taking over")
}

func TestTransitionOpenDirectlyToClosed(t *testing.T) {
	ctx := context.Background()
	manager, _, index, _, id := setup(t)

	rca, err := manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "duplicate incident")
	gt.NoError(t, err)
	gt.V(t, rca.Status).Equal(model.RCAStatusClosed)
	gt.NotNil(t, rca.ClosedAt)
	gt.True(t, rca.Vectorized)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)
}

func TestTransitionRejected(t *testing.T) {
	ctx := context.Background()
	manager, repo, _, _, id := setup(t)

	_, err := manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "")
	gt.NoError(t, err)

	// Closed is terminal
	for _, next := range []model.RCAStatus{model.RCAStatusOpen, model.RCAStatusInProgress, model.RCAStatusClosed} {
		_, err := manager.Transition(ctx, id, next, "bob", "")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidTransition))
	}

	// Rejected transitions leave no history entries behind
	entries, err := repo.ListHistory(ctx, id)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
}

func TestTransitionUnknownStatus(t *testing.T) {
	ctx := context.Background()
	manager, _, _, _, id := setup(t)

	_, err := manager.Transition(ctx, id, model.RCAStatus("archived"), "alice", "")
	gt.Error(t, err)
}

func TestTransitionRCANotFound(t *testing.T) {
	manager, _, _, _, _ := setup(t)

	_, err := manager.Transition(context.Background(), model.NewRCAID(), model.RCAStatusClosed, "alice", "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRCANotFound))
}

func TestCloseVectorizesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	manager, repo, index, gemini, id := setup(t)

	_, err := manager.Transition(ctx, id, model.RCAStatusInProgress, "alice", "")
	gt.NoError(t, err)
	gt.V(t, gemini.EmbedCalls()).Equal(0)

	rca, err := manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "fixed")
	gt.NoError(t, err)
	gt.True(t, rca.Vectorized)
	gt.V(t, gemini.EmbedCalls()).Equal(1)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)

	stored, err := repo.GetRCA(ctx, id)
	gt.NoError(t, err)
	gt.True(t, stored.Vectorized)
}

func TestCloseVectorizationFailureSurvives(t *testing.T) {
	ctx := context.Background()
	manager, repo, index, gemini, id := setup(t)

	embedErr := errors.New("embedding service down")
	gemini.embeddingFunc = func(_ context.Context, _ string, _ int) ([]float32, error) {
		return nil, embedErr
	}

	rca, err := manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "")
	gt.Error(t, err)
	gt.NotNil(t, rca)

	// The transition itself stands; only the vector record is missing
	stored, err := repo.GetRCA(ctx, id)
	gt.NoError(t, err)
	gt.V(t, stored.Status).Equal(model.RCAStatusClosed)
	gt.False(t, stored.Vectorized)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(0)

	// The backfill recovers once the dependency is healthy again
	gemini.embeddingFunc = nil
	result, err := manager.VectorizeClosed(ctx)
	gt.NoError(t, err)
	gt.V(t, result.Closed).Equal(1)
	gt.V(t, result.Vectorized).Equal(1)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)

	stored, err = repo.GetRCA(ctx, id)
	gt.NoError(t, err)
	gt.True(t, stored.Vectorized)
}

func TestVectorizeClosedIdempotent(t *testing.T) {
	ctx := context.Background()
	manager, _, index, gemini, id := setup(t)

	_, err := manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "")
	gt.NoError(t, err)

	result, err := manager.VectorizeClosed(ctx)
	gt.NoError(t, err)
	gt.V(t, result.Closed).Equal(1)
	gt.V(t, result.Vectorized).Equal(0)
	gt.V(t, result.Skipped).Equal(1)

	// No extra embedding calls, no duplicate records
	gt.V(t, gemini.EmbedCalls()).Equal(1)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)
}

func TestConcurrentCloseVectorizesOnce(t *testing.T) {
	ctx := context.Background()
	manager, _, index, gemini, id := setup(t)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = manager.Transition(ctx, id, model.RCAStatusClosed, "racer", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			gt.True(t, errors.Is(err, model.ErrInvalidTransition))
		}
	}
	gt.V(t, succeeded).Equal(1)
	gt.V(t, gemini.EmbedCalls()).Equal(1)
	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	manager, _, _, _, id := setup(t)

	_, err := manager.Transition(ctx, id, model.RCAStatusInProgress, "alice", "investigating")
	gt.NoError(t, err)
	_, err = manager.Transition(ctx, id, model.RCAStatusClosed, "alice", "fixed")
	gt.NoError(t, err)

	entries, err := manager.History(ctx, id)
	gt.NoError(t, err)
	gt.A(t, entries).Length(2)
	gt.V(t, entries[0].NewStatus).Equal(model.RCAStatusInProgress)
	gt.V(t, entries[1].NewStatus).Equal(model.RCAStatusClosed)
}

func TestHistoryRCANotFound(t *testing.T) {
	manager, _, _, _, _ := setup(t)

	_, err := manager.History(context.Background(), model.NewRCAID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRCANotFound))
}
