// Package bootstrap provides dependency initialization for the media generation API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/mediagen-api/internal/config"
	"github.com/maauso/mediagen-api/internal/fetcher"
	"github.com/maauso/mediagen-api/internal/job"
	"github.com/maauso/mediagen-api/internal/media"
	"github.com/maauso/mediagen-api/internal/progress"
	"github.com/maauso/mediagen-api/internal/prompt"
	"github.com/maauso/mediagen-api/internal/registry"
	"github.com/maauso/mediagen-api/internal/storage"
	"github.com/maauso/mediagen-api/internal/toolbinding"
)

// ClientName identifies this server to tool servers.
const ClientName = "mediagen-api"

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Registry     *registry.Registry
	Orchestrator *job.Orchestrator
	Tracker      *job.Tracker
	Hub          *progress.Hub
	OutputDir    string
}

// outputStorage is a storage backend that also exposes its local directory.
type outputStorage interface {
	storage.Storage
	OutputDir() string
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger, version string) (*Dependencies, error) {
	// Load service registry
	services, err := registry.LoadFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load service registry: %w", err)
	}
	reg := registry.New(services,
		registry.WithDefault(media.KindImage, cfg.DefaultImageService),
		registry.WithDefault(media.KindVideo, cfg.DefaultVideoService),
	)
	logger.Info("service registry loaded",
		slog.String("path", cfg.RegistryPath),
		slog.Int("services", reg.Len()),
	)

	transform, err := initPromptTransform(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	dialer := toolbinding.NewMCPDialer(ClientName, version,
		toolbinding.WithCallTimeout(cfg.ToolCallTimeout()),
	)
	binder := toolbinding.NewBinder(dialer, logger)

	mediaFetcher := fetcher.New(
		fetcher.WithMaxAttempts(cfg.FetchMaxAttempts),
		fetcher.WithLogger(logger),
	)

	hub := progress.NewHub(logger)
	tracker := job.NewTracker()

	orchestrator := job.NewOrchestrator(
		reg,
		binder,
		mediaFetcher,
		store,
		progress.Multi{hub, progress.LogReporter{Logger: logger}},
		logger,
		job.WithTracker(tracker),
		job.WithPromptTransform(transform),
		job.WithMaxOuterRetries(cfg.MaxOuterRetries),
		job.WithMaxPollAttempts(media.KindImage, cfg.ImageMaxPollAttempts),
		job.WithMaxPollAttempts(media.KindVideo, cfg.VideoMaxPollAttempts),
	)

	return &Dependencies{
		Registry:     reg,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Hub:          hub,
		OutputDir:    store.OutputDir(),
	}, nil
}

// initPromptTransform returns whitespace normalization, extended with the
// dictionary when one is configured.
func initPromptTransform(cfg *config.Config, logger *slog.Logger) (prompt.Transform, error) {
	if cfg.PromptDictionaryPath == "" {
		return prompt.Normalize, nil
	}
	dict, err := prompt.LoadDictionary(cfg.PromptDictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("load prompt dictionary: %w", err)
	}
	logger.Info("prompt dictionary loaded",
		slog.String("path", cfg.PromptDictionaryPath),
		slog.Int("entries", dict.Len()),
	)
	return dict.Transform(), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (outputStorage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.OutputDir, cfg.ServerBaseURL, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 mirror configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir, cfg.ServerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", localStore.OutputDir()),
	)
	return localStore, nil
}
