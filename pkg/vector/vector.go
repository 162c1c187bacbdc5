package vector

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// Namespace is a logical partition of the vector store. Grouping vectors and
// historical RCA vectors never mix.
type Namespace string

const (
	// NamespaceAlertGrouping holds representative embeddings of alert
	// groups, keyed by group ID.
	NamespaceAlertGrouping Namespace = "alert-grouping"

	// NamespaceHistoricalRCA holds embeddings of closed RCA documents,
	// keyed by RCA ID. Populated only from closed RCAs.
	NamespaceHistoricalRCA Namespace = "historical-rca"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// deployment's fixed embedding dimension. This is a hard error, never
// retried.
var ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

// Record is one stored (vector, payload) tuple.
type Record struct {
	Namespace Namespace
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// Hit is one nearest-neighbor result. Score is cosine similarity in [-1, 1];
// results are ordered by descending score.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Index stores embeddings and answers nearest-neighbor queries. Writes are
// at-least-once: Upsert with the same (namespace, id) replaces the existing
// record, so retries never create duplicates.
type Index interface {
	Upsert(ctx context.Context, record *Record) error
	Query(ctx context.Context, namespace Namespace, embedding []float32, topK int) ([]*Hit, error)
	Delete(ctx context.Context, namespace Namespace, id string) error
	// Clear removes all records in the namespace. Used by regroup to rebuild
	// the alert-grouping namespace from scratch.
	Clear(ctx context.Context, namespace Namespace) error
}
