package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/memory"
	"github.com/m-mizutani/notecraft/pkg/usecase/compose"
	"github.com/m-mizutani/notecraft/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Storage
	bucket  string
	dataDir string

	// Memory
	memorySize  int64
	snapshotKey string

	// Adapters
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("NOTECRAFT_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "GCS bucket for memory snapshots (local data dir is used when empty)",
			Sources:     cli.EnvVars("NOTECRAFT_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Local directory for memory snapshots",
			Value:       ".notecraft",
			Sources:     cli.EnvVars("NOTECRAFT_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.IntFlag{
			Name:        "memory-size",
			Usage:       "Maximum number of memorized posts",
			Value:       memory.DefaultMaxSize,
			Sources:     cli.EnvVars("NOTECRAFT_MEMORY_SIZE"),
			Destination: &cfg.memorySize,
		},
		&cli.StringFlag{
			Name:        "snapshot-key",
			Usage:       "Snapshot object name in the storage backend",
			Value:       memory.DefaultSnapshotKey,
			Sources:     cli.EnvVars("NOTECRAFT_SNAPSHOT_KEY"),
			Destination: &cfg.snapshotKey,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (Gemini API backend)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID (Vertex AI backend)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location (Vertex AI backend)",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

func (cfg *config) logger() *slog.Logger {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logger
}

// newGemini creates the Gemini adapter for the configured backend
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiAPIKey == "" && cfg.geminiProject == "" {
		return nil, goerr.New("either gemini-api-key or gemini-project is required")
	}

	client, err := adapter.NewGemini(ctx, adapter.GeminiConfig{
		APIKey:   cfg.geminiAPIKey,
		Project:  cfg.geminiProject,
		Location: cfg.geminiLocation,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	return client, nil
}

// newStorage picks GCS when a bucket is configured, local files otherwise
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GCS storage")
		}
		return storage, nil
	}

	storage, err := adapter.NewFileStorage(cfg.dataDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create local storage")
	}
	return storage, nil
}

func (cfg *config) newMemory(ctx context.Context, logger *slog.Logger) (*memory.Store, error) {
	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}

	store, err := memory.New(ctx, storage,
		memory.WithMaxSize(int(cfg.memorySize)),
		memory.WithSnapshotKey(cfg.snapshotKey),
		memory.WithLogger(logger),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory store")
	}
	return store, nil
}

// newAgent builds the full pipeline agent with retrying model adapters
func (cfg *config) newAgent(ctx context.Context) (*compose.Agent, error) {
	logger := cfg.logger()

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	store, err := cfg.newMemory(ctx, logger)
	if err != nil {
		return nil, err
	}

	agent, err := compose.New(compose.NewInput{
		Text:   adapter.WithRetry(gemini, adapter.DefaultRetryAttempts, adapter.DefaultRetryDelay, logger),
		Vision: gemini,
		Image:  gemini,
		Memory: store,
		Logger: logger,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create agent")
	}
	return agent, nil
}
