package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"coveragescan/internal/adapter"
	"coveragescan/internal/config"
	"coveragescan/internal/httpapi"
	"coveragescan/internal/infrastructure/feed"
	"coveragescan/internal/infrastructure/llm"
	"coveragescan/internal/infrastructure/socialsearch"
	"coveragescan/internal/infrastructure/storage"
	"coveragescan/internal/infrastructure/videosearch"
	"coveragescan/internal/logging"
	"coveragescan/internal/outlet"
	"coveragescan/internal/ports"
	"coveragescan/internal/usecase"
)

// Application wires configs to use cases and the HTTP surface.
type Application struct {
	cfg    config.Config
	db     *sql.DB
	server *http.Server
	logger *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := storage.New(db)

	registry := adapter.NewRegistry()
	registry.Register(feed.New(nil, cfg.Scan.UserAgent, baseLogger.With("component", "adapter.feed")))
	registry.Register(videosearch.New(videosearch.Config{
		APIKey:     cfg.YouTube.APIKey,
		DailyQuota: cfg.YouTube.DailyQuota,
		SearchCost: cfg.YouTube.SearchCost,
		MaxResults: cfg.Scan.ResultsPerQuery,
	}, store, nil, baseLogger.With("component", "adapter.youtube")))
	registry.Register(socialsearch.New(socialsearch.Config{
		Endpoint:   cfg.Scraper.Endpoint,
		APIToken:   cfg.Scraper.APIToken,
		MaxResults: cfg.Scan.ResultsPerQuery,
	}, nil, baseLogger.With("component", "adapter.social")))

	scheduler := usecase.NewScheduler(store, cfg.Scan.BatchSize, cfg.Scan.FailureThreshold,
		baseLogger.With("component", "scheduler"))

	ingestor := usecase.NewIngestor(usecase.IngestDeps{
		Registry:  registry,
		Scheduler: scheduler,
		Coverage:  store,
		Keywords:  store,
		Resolver:  outlet.NewResolver(store, baseLogger.With("component", "outlet")),
		Deadline:  cfg.Scan.Deadline,
		Margin:    cfg.Scan.DeadlineMargin,
		Logger:    baseLogger.With("component", "ingest"),
	})

	var classifier ports.Classifier
	if cfg.Classifier.APIKey != "" {
		classifier = llm.New(llm.Config{
			APIKey:  cfg.Classifier.APIKey,
			Model:   cfg.Classifier.Model,
			BaseURL: cfg.Classifier.BaseURL,
		})
	}

	classifyJob := usecase.NewClassifyJob(usecase.ClassifyDeps{
		Coverage:   store,
		Keywords:   store,
		Classifier: classifier,
		BatchSize:  cfg.Classifier.BatchSize,
		Logger:     baseLogger.With("component", "classify"),
	})

	api := httpapi.New(cfg.Server.AuthToken, cfg.Scan.Deadline+cfg.Scan.DeadlineMargin,
		ingestor, classifyJob, baseLogger.With("component", "http"))

	return &Application{
		cfg:    cfg,
		db:     db,
		logger: baseLogger,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves the scheduled entry points until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return a.db.Close()
}
