package vector

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"google.golang.org/api/iterator"
)

const distanceField = "vector_distance"

// firestoreDoc is the stored document shape. The embedding is held as a
// firestore.Vector32 so FindNearest can index it.
type firestoreDoc struct {
	Embedding firestore.Vector32 `firestore:"embedding"`
	Payload   map[string]any     `firestore:"payload"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

// Firestore implements Index on Firestore vector search. Each namespace maps
// to its own collection; document IDs are the record IDs, so upserts are
// naturally idempotent.
type Firestore struct {
	client    *firestore.Client
	dimension int
	prefix    string
}

type FirestoreOption func(*Firestore)

// WithCollectionPrefix overrides the default "vector_" collection prefix.
func WithCollectionPrefix(prefix string) FirestoreOption {
	return func(f *Firestore) {
		f.prefix = prefix
	}
}

// NewFirestore creates a Firestore-backed vector index. dimension is the
// deployment's fixed embedding dimension; vectors of any other length are
// rejected.
func NewFirestore(ctx context.Context, projectID, databaseID string, dimension int, opts ...FirestoreOption) (*Firestore, error) {
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.Value("dimension", dimension))
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	f := &Firestore{
		client:    client,
		dimension: dimension,
		prefix:    "vector_",
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) collection(ns Namespace) *firestore.CollectionRef {
	name := f.prefix + strings.ReplaceAll(string(ns), "-", "_")
	return f.client.Collection(name)
}

func (f *Firestore) checkDimension(embedding []float32) error {
	if len(embedding) != f.dimension {
		return goerr.Wrap(ErrDimensionMismatch, "unexpected vector length",
			goerr.Value("want", f.dimension), goerr.Value("got", len(embedding)))
	}
	return nil
}

func (f *Firestore) Upsert(ctx context.Context, record *Record) error {
	if record.ID == "" {
		return goerr.New("vector record id is empty")
	}
	if err := f.checkDimension(record.Embedding); err != nil {
		return err
	}

	doc := firestoreDoc{
		Embedding: firestore.Vector32(record.Embedding),
		Payload:   record.Payload,
		UpdatedAt: time.Now(),
	}

	if _, err := f.collection(record.Namespace).Doc(record.ID).Set(ctx, doc); err != nil {
		return goerr.Wrap(model.ErrDependencyUnavailable, "failed to upsert vector record",
			goerr.Value("namespace", record.Namespace), goerr.Value("id", record.ID), goerr.Value("cause", err))
	}

	return nil
}

func (f *Firestore) Query(ctx context.Context, namespace Namespace, embedding []float32, topK int) ([]*Hit, error) {
	if err := f.checkDimension(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	query := f.collection(namespace).FindNearest(
		"embedding",
		firestore.Vector32(embedding),
		topK,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField},
	)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var hits []*Hit
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrDependencyUnavailable, "failed to query vector index",
				goerr.Value("namespace", namespace), goerr.Value("cause", err))
		}

		data := snap.Data()
		distance, _ := data[distanceField].(float64)
		payload, _ := data["payload"].(map[string]any)

		hits = append(hits, &Hit{
			ID: snap.Ref.ID,
			// Firestore returns cosine distance in [0, 2]; convert to
			// cosine similarity in [-1, 1].
			Score:   1 - distance,
			Payload: payload,
		})
	}

	return hits, nil
}

func (f *Firestore) Delete(ctx context.Context, namespace Namespace, id string) error {
	if _, err := f.collection(namespace).Doc(id).Delete(ctx); err != nil {
		return goerr.Wrap(model.ErrDependencyUnavailable, "failed to delete vector record",
			goerr.Value("namespace", namespace), goerr.Value("id", id), goerr.Value("cause", err))
	}
	return nil
}

func (f *Firestore) Clear(ctx context.Context, namespace Namespace) error {
	iter := f.collection(namespace).Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(model.ErrDependencyUnavailable, "failed to list vector records",
				goerr.Value("namespace", namespace), goerr.Value("cause", err))
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return goerr.Wrap(err, "failed to schedule vector record deletion")
		}
	}
	bw.End()

	return nil
}
