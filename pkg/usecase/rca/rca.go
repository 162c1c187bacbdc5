package rca

import (
	"sync"
	"time"

	"github.com/rootiq-ai/alert-rca-system/pkg/adapter"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
)

// Config holds the tuning parameters of the generation pipeline.
type Config struct {
	// TopK is how many historical incidents are retrieved per generation.
	TopK int

	// RelevanceFloor drops retrieved incidents below this cosine
	// similarity. Zero results is valid (cold start).
	RelevanceFloor float64

	// PromptBudget bounds the size of the assembled prompt in characters.
	// When exceeded, the lowest-similarity historical context is dropped
	// first.
	PromptBudget int

	// EmbeddingDimensions is the fixed embedding dimension of the
	// deployment.
	EmbeddingDimensions int

	Temperature     float32
	MaxOutputTokens int32

	// MaxAttempts bounds model invocations per generation; RetryWait is the
	// base of the exponential backoff between attempts.
	MaxAttempts int
	RetryWait   time.Duration

	// Timeout applies per model invocation.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.RelevanceFloor == 0 {
		c.RelevanceFloor = 0.7
	}
	if c.PromptBudget == 0 {
		c.PromptBudget = 8000
	}
	if c.EmbeddingDimensions == 0 {
		c.EmbeddingDimensions = 768
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 2048
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryWait == 0 {
		c.RetryWait = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	return c
}

// Pipeline turns an alert group into a draft RCA: retrieve similar closed
// incidents, assemble a bounded prompt, invoke the model, persist the result.
type Pipeline struct {
	repo    repository.Repository
	index   vector.Index
	gemini  adapter.Gemini
	storage adapter.Storage
	cfg     Config

	// mu guards locks; each group's generations are serialized so a group
	// never ends up with more than one RCA.
	mu    sync.Mutex
	locks map[model.GroupID]*sync.Mutex
}

// Option is a functional option for Pipeline
type Option func(*Pipeline)

// WithStorage enables archiving of generation artifacts (prompt and raw
// response) for audit.
func WithStorage(s adapter.Storage) Option {
	return func(p *Pipeline) {
		p.storage = s
	}
}

// New creates a generation pipeline. Zero fields of cfg fall back to the
// documented defaults.
func New(repo repository.Repository, index vector.Index, gemini adapter.Gemini, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:   repo,
		index:  index,
		gemini: gemini,
		cfg:    cfg.withDefaults(),
		locks:  map[model.GroupID]*sync.Mutex{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Config returns the pipeline's effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// lock acquires the per-group mutex and returns its unlock.
func (p *Pipeline) lock(id model.GroupID) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
