package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/adapter"
	"github.com/tandemlab/tandem/pkg/agent"
	"github.com/tandemlab/tandem/pkg/cache"
	"github.com/tandemlab/tandem/pkg/ingest"
	"github.com/tandemlab/tandem/pkg/repository"
	"github.com/tandemlab/tandem/pkg/usecase/memory"
	"github.com/tandemlab/tandem/pkg/usecase/orchestrate"
	"github.com/tandemlab/tandem/pkg/usecase/searchmem"
	"github.com/tandemlab/tandem/pkg/utils/logging"
	"github.com/tandemlab/tandem/pkg/vectordb"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Repository
	project  string
	database string

	// Vector index
	vectorPath string

	// Adapters
	geminiProject  string
	geminiLocation string
	searxURL       string
	searxLanguage  string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("TANDEM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore (empty for in-memory store)",
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
			Name:        "vector-path",
			Usage:       "Directory for the persistent vector index (empty for in-memory)",
			Sources:     cli.EnvVars("TANDEM_VECTOR_PATH"),
			Destination: &cfg.vectorPath,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
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
	}
}

// searchFlags returns flags for the web search service
func searchFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "searx-url",
			Usage:       "Base URL of the SearXNG instance",
			Sources:     cli.EnvVars("SEARXNG_URL"),
			Destination: &cfg.searxURL,
		},
		&cli.StringFlag{
			Name:        "searx-language",
			Usage:       "Search language code",
			Value:       "en",
			Sources:     cli.EnvVars("SEARXNG_LANGUAGE"),
			Destination: &cfg.searxLanguage,
		},
	}
}

// withLogger installs a logger built from the configured level into the context
func (cfg *config) withLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stdout)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the session store: Firestore when a project is
// configured, otherwise the in-process store for local use
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		logging.From(ctx).Warn("no project configured, using in-memory session store")
		return repository.NewMemory(), nil
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newWebSearch creates the SearXNG client
func (cfg *config) newWebSearch() (adapter.WebSearch, error) {
	if cfg.searxURL == "" {
		return nil, goerr.New("searx-url is required")
	}
	return adapter.NewSearx(cfg.searxURL, adapter.WithLanguage(cfg.searxLanguage)), nil
}

// newVectorDB creates the vector index, persistent when vector-path is set
func (cfg *config) newVectorDB() (vectordb.Index, error) {
	index, err := vectordb.NewChromem(cfg.vectorPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open vector index")
	}
	return index, nil
}

// newOrchestrator wires the full turn pipeline from the configured backends
func (cfg *config) newOrchestrator(ctx context.Context) (*orchestrate.Orchestrator, *memory.Compactor, vectordb.Index, adapter.Gemini, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	web, err := cfg.newWebSearch()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	index, err := cfg.newVectorDB()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	snapshots, err := cache.NewRistretto()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	compactor := memory.New(repo, gemini)
	analyzer := orchestrate.NewAnalyzerChain(
		orchestrate.RetryPolicy{MaxAttempts: 2},
		orchestrate.NewGeminiAnalyzer(gemini),
		orchestrate.NewHeuristicAnalyzer(),
	)

	orchestrator := orchestrate.New(orchestrate.Input{
		Gemini:    gemini,
		Analyzer:  analyzer,
		Local:     agent.NewLocal(index, gemini),
		Search:    agent.NewSearch(web, searchmem.New(index, gemini), repo),
		Compactor: compactor,
		Snapshots: snapshots,
	})

	return orchestrator, compactor, index, gemini, nil
}

// newIngestor creates the document ingestion pipeline
func (cfg *config) newIngestor(ctx context.Context) (*ingest.Ingestor, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	index, err := cfg.newVectorDB()
	if err != nil {
		return nil, err
	}

	return ingest.New(index, gemini), nil
}
