package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/adapter"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// Config holds the lifecycle manager's parameters.
type Config struct {
	// EmbeddingDimensions is the fixed embedding dimension of the
	// deployment.
	EmbeddingDimensions int
}

func (c Config) withDefaults() Config {
	if c.EmbeddingDimensions == 0 {
		c.EmbeddingDimensions = 768
	}
	return c
}

// Manager enforces the RCA status state machine and triggers vectorization
// into the historical-rca namespace exactly once, on the transition that
// first lands in closed.
type Manager struct {
	repo   repository.Repository
	index  vector.Index
	gemini adapter.Gemini
	cfg    Config

	// locks serializes transitions per RCA so no two concurrent transitions
	// can both win the into-closed vectorization trigger.
	mu    sync.Mutex
	locks map[model.RCAID]*sync.Mutex
}

// New creates a lifecycle manager.
func New(repo repository.Repository, index vector.Index, gemini adapter.Gemini, cfg Config) *Manager {
	return &Manager{
		repo:   repo,
		index:  index,
		gemini: gemini,
		cfg:    cfg.withDefaults(),
		locks:  map[model.RCAID]*sync.Mutex{},
	}
}

func (m *Manager) lock(id model.RCAID) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Transition moves the RCA to the next status. Illegal transitions are
// rejected without recording a history entry. On the first arrival in
// closed, the RCA is embedded and written into the historical-rca namespace;
// if that write fails the transition itself stands and the error tells the
// caller to run VectorizeClosed.
func (m *Manager) Transition(ctx context.Context, id model.RCAID, next model.RCAStatus, actor, reason string) (*model.RCA, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}

	unlock := m.lock(id)
	defer unlock()

	rca, err := m.repo.GetRCA(ctx, id)
	if err != nil {
		return nil, err
	}

	if !rca.Status.CanTransitionTo(next) {
		return nil, goerr.Wrap(model.ErrInvalidTransition, "transition not allowed",
			goerr.Value("rca_id", id), goerr.Value("from", rca.Status), goerr.Value("to", next))
	}

	prev := rca.Status
	now := time.Now()
	rca.Status = next
	rca.UpdatedAt = now
	if next == model.RCAStatusClosed {
		rca.ClosedAt = &now
	}

	entry := &model.RCAHistoryEntry{
		ID:             model.NewRCAHistoryID(),
		RCAID:          id,
		PreviousStatus: prev,
		NewStatus:      next,
		Actor:          actor,
		Reason:         reason,
		CreatedAt:      now,
	}
	// One atomic write: a committed transition always has its history entry.
	if err := m.repo.UpdateRCAWithHistory(ctx, rca, entry); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("rca status changed",
		"rca_id", id, "from", prev, "to", next, "actor", actor)

	if next == model.RCAStatusClosed && !rca.Vectorized {
		if err := m.vectorize(ctx, rca); err != nil {
			return rca, goerr.Wrap(err, "rca closed but vectorization failed; run vectorize-closed to backfill",
				goerr.Value("rca_id", id))
		}
	}

	return rca, nil
}

// History lists the status transitions of the RCA in chronological order.
func (m *Manager) History(ctx context.Context, id model.RCAID) ([]*model.RCAHistoryEntry, error) {
	if _, err := m.repo.GetRCA(ctx, id); err != nil {
		return nil, err
	}
	return m.repo.ListHistory(ctx, id)
}
