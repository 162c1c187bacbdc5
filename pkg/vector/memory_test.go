package vector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

func TestMemoryUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(2)

	gt.NoError(t, index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g1",
		Embedding: []float32{1, 0},
		Payload:   map[string]any{"title": "group one"},
	}))
	gt.NoError(t, index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g2",
		Embedding: []float32{0, 1},
	}))

	hits, err := index.Query(ctx, vector.NamespaceAlertGrouping, []float32{1, 0}, 10)
	gt.NoError(t, err)
	gt.V(t, len(hits)).Equal(2)

	// Descending similarity: identical vector first
	gt.V(t, hits[0].ID).Equal("g1")
	gt.V(t, hits[0].Score).Equal(1.0)
	gt.V(t, hits[1].ID).Equal("g2")
	gt.V(t, hits[1].Score).Equal(0.0)
	gt.V(t, hits[0].Payload["title"]).Equal("group one")
}

func TestMemoryQueryTopK(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(2)

	for _, id := range []string{"a", "b", "c"} {
		gt.NoError(t, index.Upsert(ctx, &vector.Record{
			Namespace: vector.NamespaceHistoricalRCA,
			ID:        id,
			Embedding: []float32{1, 0},
		}))
	}

	hits, err := index.Query(ctx, vector.NamespaceHistoricalRCA, []float32{1, 0}, 2)
	gt.NoError(t, err)
	gt.V(t, len(hits)).Equal(2)

	// Equal scores keep a stable ID order
	gt.V(t, hits[0].ID).Equal("a")
	gt.V(t, hits[1].ID).Equal("b")
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(3)

	err := index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g1",
		Embedding: []float32{1, 0},
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, vector.ErrDimensionMismatch))

	_, err = index.Query(ctx, vector.NamespaceAlertGrouping, []float32{1, 0, 0, 0}, 5)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, vector.ErrDimensionMismatch))
}

func TestMemoryUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(2)

	record := &vector.Record{
		Namespace: vector.NamespaceHistoricalRCA,
		ID:        "rca-1",
		Embedding: []float32{1, 0},
	}
	gt.NoError(t, index.Upsert(ctx, record))
	gt.NoError(t, index.Upsert(ctx, record))

	gt.V(t, index.Count(vector.NamespaceHistoricalRCA)).Equal(1)
}

func TestMemoryNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(2)

	gt.NoError(t, index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g1",
		Embedding: []float32{1, 0},
	}))

	hits, err := index.Query(ctx, vector.NamespaceHistoricalRCA, []float32{1, 0}, 5)
	gt.NoError(t, err)
	gt.V(t, len(hits)).Equal(0)
}

func TestMemoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	index := vector.NewMemory(2)

	gt.NoError(t, index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g1",
		Embedding: []float32{1, 0},
	}))
	gt.NoError(t, index.Upsert(ctx, &vector.Record{
		Namespace: vector.NamespaceAlertGrouping,
		ID:        "g2",
		Embedding: []float32{0, 1},
	}))

	gt.NoError(t, index.Delete(ctx, vector.NamespaceAlertGrouping, "g1"))
	gt.V(t, index.Count(vector.NamespaceAlertGrouping)).Equal(1)

	gt.NoError(t, index.Clear(ctx, vector.NamespaceAlertGrouping))
	gt.V(t, index.Count(vector.NamespaceAlertGrouping)).Equal(0)
}
