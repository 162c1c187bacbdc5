package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/adapter"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
	"github.com/rootiq-ai/alert-rca-system/pkg/usecase/grouping"
	"github.com/rootiq-ai/alert-rca-system/pkg/usecase/lifecycle"
	"github.com/rootiq-ai/alert-rca-system/pkg/usecase/rca"
	"github.com/rootiq-ai/alert-rca-system/pkg/utils/logging"
	"github.com/rootiq-ai/alert-rca-system/pkg/vector"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Repository / vector index
	project  string
	database string

	// Adapters
	geminiProject   string
	geminiLocation  string
	generativeModel string
	embeddingModel  string
	bucket          string

	// Logging
	logLevel string
	logJSON  bool

	// Optional YAML file with tuning values
	configPath string

	tuning tuningConfig
}

// tuningConfig carries the core engines' parameters. Values come from the
// optional config file; flags override non-zero.
type tuningConfig struct {
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	GroupingWindow      time.Duration `yaml:"groupingWindow"`
	EmbeddingDimensions int64         `yaml:"embeddingDimensions"`
	CandidateLimit      int64         `yaml:"candidateLimit"`
	TopK                int64         `yaml:"topK"`
	RelevanceFloor      float64       `yaml:"relevanceFloor"`
	PromptBudget        int           `yaml:"promptBudget"`
	MaxAttempts         int           `yaml:"maxAttempts"`
	RetryWait           time.Duration `yaml:"retryWait"`
	GenerationTimeout   time.Duration `yaml:"generationTimeout"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML file with tuning parameters",
			Sources:     cli.EnvVars("ALERT_RCA_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ALERT_RCA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Emit logs as JSON",
			Sources:     cli.EnvVars("ALERT_RCA_LOG_JSON"),
			Destination: &cfg.logJSON,
		},
	}
}

// llmFlags returns flags for model-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("ALERT_RCA_GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("ALERT_RCA_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for generation artifacts (optional)",
			Sources:     cli.EnvVars("ALERT_RCA_ARTIFACT_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// tuningFlags returns flags overriding the core engines' parameters
func tuningFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Similarity threshold for joining a group",
			Sources:     cli.EnvVars("ALERT_RCA_THRESHOLD"),
			Destination: &cfg.tuning.SimilarityThreshold,
		},
		&cli.DurationFlag{
			Name:        "window",
			Usage:       "Grouping time window",
			Sources:     cli.EnvVars("ALERT_RCA_WINDOW"),
			Destination: &cfg.tuning.GroupingWindow,
		},
		&cli.IntFlag{
			Name:        "dimensions",
			Usage:       "Embedding dimensions (fixed per deployment)",
			Sources:     cli.EnvVars("ALERT_RCA_DIMENSIONS"),
			Destination: &cfg.tuning.EmbeddingDimensions,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Historical incidents retrieved per generation",
			Sources:     cli.EnvVars("ALERT_RCA_TOP_K"),
			Destination: &cfg.tuning.TopK,
		},
		&cli.FloatFlag{
			Name:        "relevance-floor",
			Usage:       "Minimum similarity for retrieved incidents",
			Sources:     cli.EnvVars("ALERT_RCA_RELEVANCE_FLOOR"),
			Destination: &cfg.tuning.RelevanceFloor,
		},
	}
}

// loadTuning resolves the tuning configuration: config file values first,
// then non-zero flags override.
func (cfg *config) loadTuning() error {
	if cfg.configPath == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.Value("path", cfg.configPath))
	}

	var fromFile tuningConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.Value("path", cfg.configPath))
	}

	flags := cfg.tuning
	cfg.tuning = fromFile
	if flags.SimilarityThreshold != 0 {
		cfg.tuning.SimilarityThreshold = flags.SimilarityThreshold
	}
	if flags.GroupingWindow != 0 {
		cfg.tuning.GroupingWindow = flags.GroupingWindow
	}
	if flags.EmbeddingDimensions != 0 {
		cfg.tuning.EmbeddingDimensions = flags.EmbeddingDimensions
	}
	if flags.CandidateLimit != 0 {
		cfg.tuning.CandidateLimit = flags.CandidateLimit
	}
	if flags.TopK != 0 {
		cfg.tuning.TopK = flags.TopK
	}
	if flags.RelevanceFloor != 0 {
		cfg.tuning.RelevanceFloor = flags.RelevanceFloor
	}
	return nil
}

// setupLogger installs the configured logger as default and into the context.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logJSON, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

func (cfg *config) dimensions() int {
	if cfg.tuning.EmbeddingDimensions > 0 {
		return int(cfg.tuning.EmbeddingDimensions)
	}
	return 768
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newIndex creates a new vector index instance
func (cfg *config) newIndex(ctx context.Context) (vector.Index, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}

	index, err := vector.NewFirestore(ctx, cfg.project, cfg.database, cfg.dimensions())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vector index")
	}
	return index, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.generativeModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.generativeModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}

	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newGroupingEngine wires the grouping engine from configured dependencies
func (cfg *config) newGroupingEngine(ctx context.Context) (*grouping.Engine, error) {
	if err := cfg.loadTuning(); err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	return grouping.New(repo, index, gemini, grouping.Config{
		SimilarityThreshold: cfg.tuning.SimilarityThreshold,
		Window:              cfg.tuning.GroupingWindow,
		EmbeddingDimensions: int(cfg.tuning.EmbeddingDimensions),
		CandidateLimit:      int(cfg.tuning.CandidateLimit),
	}), nil
}

// newPipeline wires the RCA generation pipeline from configured dependencies
func (cfg *config) newPipeline(ctx context.Context) (*rca.Pipeline, error) {
	if err := cfg.loadTuning(); err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	var opts []rca.Option
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		opts = append(opts, rca.WithStorage(storage))
	}

	return rca.New(repo, index, gemini, rca.Config{
		TopK:                int(cfg.tuning.TopK),
		RelevanceFloor:      cfg.tuning.RelevanceFloor,
		PromptBudget:        cfg.tuning.PromptBudget,
		EmbeddingDimensions: int(cfg.tuning.EmbeddingDimensions),
		MaxAttempts:         cfg.tuning.MaxAttempts,
		RetryWait:           cfg.tuning.RetryWait,
		Timeout:             cfg.tuning.GenerationTimeout,
	}, opts...), nil
}

// newLifecycle wires the lifecycle manager from configured dependencies
func (cfg *config) newLifecycle(ctx context.Context) (*lifecycle.Manager, error) {
	if err := cfg.loadTuning(); err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	return lifecycle.New(repo, index, gemini, lifecycle.Config{
		EmbeddingDimensions: int(cfg.tuning.EmbeddingDimensions),
	}), nil
}
