package grouping

import (
	"sync"
	"time"

	"github.com/rootiq-ai/alert-rca-system/pkg/adapter"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// Config holds the tuning parameters of the grouping engine. Values are
// explicit per engine instance; there are no module-level defaults to
// mutate.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for an alert to
	// join an existing group. The comparison is inclusive: score >=
	// threshold joins.
	SimilarityThreshold float64

	// Window is the maximum span between a group's last update and a new
	// alert for the alert to be eligible to join that group.
	Window time.Duration

	// EmbeddingDimensions is the fixed embedding dimension of the
	// deployment.
	EmbeddingDimensions int

	// CandidateLimit is how many nearest groups are considered per
	// assignment decision.
	CandidateLimit int

	// MaxRetries bounds re-decisions after a lost compare-and-swap race.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.8
	}
	if c.Window == 0 {
		c.Window = 5 * time.Minute
	}
	if c.EmbeddingDimensions == 0 {
		c.EmbeddingDimensions = 768
	}
	if c.CandidateLimit == 0 {
		c.CandidateLimit = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}

// Engine assigns incoming alerts to alert groups. The representative
// embedding of a group is the founding alert's embedding and never changes
// (first-alert-wins).
type Engine struct {
	repo   repository.Repository
	index  vector.Index
	gemini adapter.Gemini
	cfg    Config

	// opMu serializes Regroup against concurrent Assigns. Assigns take the
	// read side, so unrelated assignments still proceed in parallel.
	opMu sync.RWMutex

	// createMu serializes the create-new-group decision so two
	// near-simultaneous similar alerts cannot both found a group.
	createMu sync.Mutex

	locks groupLocks
}

// New creates a grouping engine. Zero fields of cfg fall back to the
// documented defaults.
func New(repo repository.Repository, index vector.Index, gemini adapter.Gemini, cfg Config) *Engine {
	return &Engine{
		repo:   repo,
		index:  index,
		gemini: gemini,
		cfg:    cfg.withDefaults(),
		locks:  groupLocks{locks: map[model.GroupID]*sync.Mutex{}},
	}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// groupLocks hands out one mutex per group so that membership updates of the
// same group are serialized while different groups stay independent.
type groupLocks struct {
	mu    sync.Mutex
	locks map[model.GroupID]*sync.Mutex
}

func (g *groupLocks) lock(id model.GroupID) func() {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}
