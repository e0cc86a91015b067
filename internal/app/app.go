// Package app builds every long-lived collaborator from configuration and
// runs one enrichment pass. Construction fails fast: a store that cannot be
// reached or a provider that cannot be initialized aborts before any batch.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/api"
	"github.com/JakeFAU/recipe-image-enricher/internal/clock/system"
	"github.com/JakeFAU/recipe-image-enricher/internal/config"
	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
	"github.com/JakeFAU/recipe-image-enricher/internal/extract"
	collyfetcher "github.com/JakeFAU/recipe-image-enricher/internal/fetcher/colly"
	"github.com/JakeFAU/recipe-image-enricher/internal/id/uuid"
	"github.com/JakeFAU/recipe-image-enricher/internal/metrics"
	"github.com/JakeFAU/recipe-image-enricher/internal/pipeline"
	"github.com/JakeFAU/recipe-image-enricher/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/recipe-image-enricher/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/recipe-image-enricher/internal/publisher/pubsub"
	"github.com/JakeFAU/recipe-image-enricher/internal/report"
	"github.com/JakeFAU/recipe-image-enricher/internal/storage/gcs"
	"github.com/JakeFAU/recipe-image-enricher/internal/storage/local"
	"github.com/JakeFAU/recipe-image-enricher/internal/storage/memory"
	"github.com/JakeFAU/recipe-image-enricher/internal/storage/postgres"
)

// App holds the wired collaborators for one invocation.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        enrichment.Store
	orchestrator *pipeline.Orchestrator
	tracker      *report.Tracker
	server       *api.Server
	closers      []func() error
}

type options struct {
	store      enrichment.Store
	fetcher    enrichment.Fetcher
	registerer prometheus.Registerer
	pauser     pipeline.Pauser
}

// Option overrides a collaborator that New would otherwise build from config.
type Option func(*options)

// WithStore uses store instead of connecting to Postgres.
func WithStore(store enrichment.Store) Option {
	return func(o *options) { o.store = store }
}

// WithFetcher uses f instead of the colly fetcher.
func WithFetcher(f enrichment.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegisterer registers report collectors against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPauser replaces the pacing timer.
func WithPauser(p pipeline.Pauser) Option {
	return func(o *options) { o.pauser = p }
}

// New wires the application. On error every resource opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store = o.store; a.store == nil {
		if a.store, err = a.buildStore(ctx); err != nil {
			return nil, err
		}
	}
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = a.buildFetcher()
	}
	archive, err := a.buildArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	persister, err := enrichment.NewPersister(a.store, enrichment.PersisterConfig{
		Placeholder: cfg.Enricher.PlaceholderImageURL,
		Attempts:    a.store,
		Clock:       system.New(),
	})
	if err != nil {
		return nil, fmt.Errorf("build persister: %w", err)
	}

	promSink, err := report.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, err
	}
	a.tracker = report.NewTracker()
	var notify enrichment.Reporter
	if publisher != nil {
		notify = report.NewNotifySink(publisher, cfg.Notify.Topic, logger)
	}
	reporter := report.New(report.NewLogSink(logger), promSink, a.tracker, notify)

	a.orchestrator, err = pipeline.New(pipeline.Config{
		BatchSize:     cfg.Enricher.BatchSize,
		TotalBatches:  cfg.Enricher.TotalBatches,
		PacingDelay:   cfg.PacingDelay(),
		ArchivePrefix: cfg.Archive.Prefix,
	}, pipeline.Deps{
		Selector:  a.store,
		Stats:     a.store,
		Fetcher:   fetcher,
		Extractor: extract.New(),
		Persister: persister,
		Archive:   archive,
		Reporter:  reporter,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Pauser:    o.pauser,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		a.server = api.NewServer(a.store, a.tracker, func() string {
			return a.orchestrator.State().String()
		}, logger)
	}
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (enrichment.Store, error) {
	store, err := postgres.NewRecipeStore(ctx, postgres.StoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		AttemptsTable:   a.cfg.DB.AttemptsTable,
		MaxAttempts:     a.cfg.Enricher.MaxAttempts,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init record store: %w", err)
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	a.logger.Info("connected to record store", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

func (a *App) buildFetcher() enrichment.Fetcher {
	var opts []collyfetcher.Option
	if a.cfg.HTTP.MaxRPSPerHost > 0 {
		opts = append(opts, collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.MaxRPSPerHost})))
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		Timeout:       a.cfg.RequestTimeout(),
		RespectRobots: a.cfg.HTTP.RespectRobots,
	}, opts...)
}

func (a *App) buildArchive(ctx context.Context) (enrichment.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case config.ProviderLocal:
		store, err := local.New(a.cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		a.logger.Info("archiving unmatched pages locally", zap.String("dir", store.Root()))
		return store, nil
	case config.ProviderGCS:
		store, err := gcs.Dial(ctx, a.cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("archiving unmatched pages to gcs", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return store, nil
	case config.ProviderMemory:
		a.logger.Warn("archive provider is memory; unmatched pages are lost when the process exits")
		return memory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (enrichment.Publisher, error) {
	switch a.cfg.Notify.Provider {
	case config.ProviderPubSub:
		pub, err := pubsubpublisher.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	case config.ProviderMemory:
		a.logger.Warn("notify provider is memory; run summaries are not delivered outside the process")
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}

// Tracker exposes the progress tracker fed by the reporter.
func (a *App) Tracker() *report.Tracker { return a.tracker }

// Orchestrator exposes the wired orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orchestrator }

// Run executes one enrichment pass. When metrics.addr is set the operator
// router serves for the duration of the run.
func (a *App) Run(ctx context.Context) (enrichment.RunSummary, error) {
	serverDone := make(chan error, 1)
	serveCtx, stopServer := context.WithCancel(ctx)
	if a.server != nil {
		go func() { serverDone <- a.server.Serve(serveCtx, a.cfg.Metrics.Addr) }()
	} else {
		serverDone <- nil
	}

	summary, err := a.orchestrator.Run(ctx)

	stopServer()
	if serr := <-serverDone; serr != nil {
		a.logger.Warn("metrics server stopped with error", zap.Error(serr))
	}
	return summary, err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing resources", zap.Error(err))
	}
}
