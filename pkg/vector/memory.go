package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-process Index used by tests and local runs. Behavior
// matches the Firestore index: fixed dimension, idempotent upserts, results
// ordered by descending cosine similarity.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	records   map[Namespace]map[string]*Record
}

// NewMemory creates an in-memory vector index with a fixed dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		records:   map[Namespace]map[string]*Record{},
	}
}

func (m *Memory) checkDimension(embedding []float32) error {
	if len(embedding) != m.dimension {
		return goerr.Wrap(ErrDimensionMismatch, "unexpected vector length",
			goerr.Value("want", m.dimension), goerr.Value("got", len(embedding)))
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, record *Record) error {
	if record.ID == "" {
		return goerr.New("vector record id is empty")
	}
	if err := m.checkDimension(record.Embedding); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.records[record.Namespace]
	if ns == nil {
		ns = map[string]*Record{}
		m.records[record.Namespace] = ns
	}

	stored := *record
	stored.Embedding = append([]float32(nil), record.Embedding...)
	ns[record.ID] = &stored

	return nil
}

func (m *Memory) Query(_ context.Context, namespace Namespace, embedding []float32, topK int) ([]*Hit, error) {
	if err := m.checkDimension(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*Hit
	for id, rec := range m.records[namespace] {
		hits = append(hits, &Hit{
			ID:      id,
			Score:   cosineSimilarity(embedding, rec.Embedding),
			Payload: rec.Payload,
		})
	}

	// Descending score, ID ascending for a stable order between equal scores
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *Memory) Delete(_ context.Context, namespace Namespace, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[namespace], id)
	return nil
}

func (m *Memory) Clear(_ context.Context, namespace Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, namespace)
	return nil
}

// Count returns the number of records in the namespace.
func (m *Memory) Count(namespace Namespace) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[namespace])
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
