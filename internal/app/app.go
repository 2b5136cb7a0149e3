// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/blob"
	"github.com/appscout/appscout/internal/blob/gcs"
	"github.com/appscout/appscout/internal/blob/local"
	"github.com/appscout/appscout/internal/catalog"
	"github.com/appscout/appscout/internal/chain"
	"github.com/appscout/appscout/internal/clock/system"
	"github.com/appscout/appscout/internal/config"
	"github.com/appscout/appscout/internal/engine"
	"github.com/appscout/appscout/internal/expand"
	"github.com/appscout/appscout/internal/export"
	"github.com/appscout/appscout/internal/filter"
	"github.com/appscout/appscout/internal/id/uuid"
	"github.com/appscout/appscout/internal/logging"
	"github.com/appscout/appscout/internal/metrics"
	"github.com/appscout/appscout/internal/orchestrator"
	"github.com/appscout/appscout/internal/progress"
	"github.com/appscout/appscout/internal/progress/sinks"
	"github.com/appscout/appscout/internal/publish"
	pubsubpub "github.com/appscout/appscout/internal/publish/pubsub"
	"github.com/appscout/appscout/internal/scout"
	"github.com/appscout/appscout/internal/store/memory"
	"github.com/appscout/appscout/internal/store/postgres"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	Logger       *zap.Logger
	Config       config.Config
	Leads        scout.DedupStore
	Queue        scout.WorkQueue
	Orchestrator *orchestrator.Orchestrator
	Chain        *chain.Controller
	Exporter     *export.Exporter
	Publisher    publish.Publisher
	Hub          *progress.Hub

	clock   scout.Clock
	closers []func()
}

// New creates and initializes an App based on the loaded configuration. It is
// the central point for service initialization and fails fast if any critical
// service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Info("initializing application services")

	metrics.Init()

	a := &App{
		Logger: logger,
		Config: cfg,
		clock:  system.New(),
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}

	artifacts, err := a.initArtifactStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Exporter = export.NewExporter(a.Leads, artifacts, cfg.Storage.Prefix, a.clock, logger)

	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}

	cat, err := catalog.New(catalog.Config{
		BaseURL:     cfg.Catalog.BaseURL,
		UserAgent:   cfg.Catalog.UserAgent,
		Timeout:     time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.Catalog.MaxRetries,
		BackoffBase: time.Duration(cfg.Catalog.BackoffInitialMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Catalog.BackoffMaxMs) * time.Millisecond,
		SearchLimit: cfg.Catalog.SearchLimit,
	}, logger.Named("catalog"))
	if err != nil {
		return nil, fmt.Errorf("initialize catalog client: %w", err)
	}

	keys := make([]expand.ProviderKey, 0, len(cfg.Expand.Keys))
	for _, k := range cfg.Expand.Keys {
		keys = append(keys, expand.ProviderKey{APIKey: k.APIKey, Models: k.Models})
	}
	rotator := expand.NewRotator(expand.Config{
		Keys:           keys,
		MaxTerms:       cfg.Expand.MaxTerms,
		AttemptTimeout: time.Duration(cfg.Expand.AttemptTimeoutSec) * time.Second,
		PromptTemplate: cfg.Expand.PromptTemplate,
	}, expand.NewGeminiGenerator(), logger.Named("expand"))

	accept := filter.New(cfg.Crawl.PopularityCeiling, &filter.MXChecker{
		Timeout: time.Duration(cfg.Crawl.ContactTimeoutSec) * time.Second,
	})

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("initialize progress metrics: %w", err)
	}
	a.Hub = progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("crawl")),
		promSink,
	)
	a.closers = append(a.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	})

	eng := engine.New(rotator, cat, accept, a.Leads, a.clock, a.Hub, engine.Config{
		Regions:       cfg.Crawl.Regions,
		RegionDelay:   cfg.RegionDelay(),
		ProgressEvery: cfg.Crawl.ProgressEvery,
	}, logger.Named("engine"))

	a.Orchestrator = orchestrator.New(eng, uuid.NewUUIDGenerator(), a.clock, a.notifyBatch, logger.Named("orchestrator"))
	a.Chain = chain.New(a.Queue, starterAdapter{orch: a.Orchestrator}, cfg.ChainPause(), logger.Named("chain"))

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.Config.DB.DSN == "" {
		a.Logger.Info("using in-memory stores, leads will not survive restarts")
		a.Leads = memory.NewLeadStore()
		a.Queue = memory.NewWorkQueue()
		return nil
	}

	a.Logger.Info("connecting to postgres")
	leads, err := postgres.NewLeadStore(ctx, a.Config.DB.DSN)
	if err != nil {
		return fmt.Errorf("initialize lead store: %w", err)
	}
	if err := leads.EnsureSchema(ctx); err != nil {
		leads.Close()
		return err
	}
	a.closers = append(a.closers, leads.Close)

	queue, err := postgres.NewWorkQueue(ctx, a.Config.DB.DSN)
	if err != nil {
		return fmt.Errorf("initialize work queue: %w", err)
	}
	if err := queue.EnsureSchema(ctx); err != nil {
		queue.Close()
		return err
	}
	a.closers = append(a.closers, queue.Close)

	a.Leads = leads
	a.Queue = queue
	return nil
}

func (a *App) initArtifactStore(ctx context.Context) (blob.Store, error) {
	switch a.Config.Storage.Provider {
	case "gcs":
		a.Logger.Info("using GCS artifact storage", zap.String("bucket", a.Config.Storage.GCSBucket))
		store, err := gcs.New(ctx, gcs.Config{Bucket: a.Config.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case "local":
		a.Logger.Info("using local artifact storage", zap.String("dir", a.Config.Storage.LocalDir))
		store, err := local.New(local.Config{BaseDir: a.Config.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("initialize local storage: %w", err)
		}
		return store, nil
	case "noop":
		a.Logger.Info("using no-op artifact storage, exports will be discarded")
		return blob.NoOpStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", a.Config.Storage.Provider)
	}
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.Config.PubSub.ProjectID == "" || a.Config.PubSub.TopicName == "" {
		a.Logger.Info("pubsub not configured, completion notices will be dropped")
		a.Publisher = publish.NoOpPublisher{}
		return nil
	}
	a.Logger.Info("connecting to pubsub", zap.String("topic", a.Config.PubSub.TopicName))
	pub, err := pubsubpub.New(ctx, a.Config.PubSub.ProjectID, a.Config.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("initialize pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() { _ = pub.Close() })
	a.Publisher = pub
	return nil
}

// notifyBatch exports the finished crawl's leads as a CSV artifact and
// publishes a completion notice carrying its URI. It runs for every finished
// crawl, including canceled ones carrying partial results. Batches without
// leads skip the export, so a fruitless crawl leaves no empty artifact
// behind.
func (a *App) notifyBatch(ctx context.Context, batch scout.ResultBatch) {
	notice := publish.BatchNotice{
		CrawlID:      batch.CrawlID,
		Seed:         batch.Seed,
		Leads:        len(batch.Leads),
		ItemsScanned: batch.ItemsScanned,
		Canceled:     batch.Canceled,
		FinishedAt:   a.clock.Now(),
	}
	if len(batch.Leads) > 0 {
		res, err := a.Exporter.Export(ctx, batch.Seed)
		if err != nil {
			a.Logger.Warn("export finished batch failed",
				zap.String("crawl_id", batch.CrawlID),
				zap.Error(err),
			)
		} else {
			notice.ExportURI = res.URI
		}
	}
	if _, err := a.Publisher.Publish(ctx, a.Config.PubSub.TopicName, notice); err != nil {
		a.Logger.Warn("publish completion notice failed",
			zap.String("crawl_id", batch.CrawlID),
			zap.Error(err),
		)
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}

// starterAdapter lets the chain controller start crawls through the
// orchestrator without depending on its concrete handle type.
type starterAdapter struct {
	orch *orchestrator.Orchestrator
}

func (s starterAdapter) Start(seed string, owner scout.OwnerID) (chain.Waiter, error) {
	h, err := s.orch.Start(seed, owner)
	if err != nil {
		return nil, err
	}
	return h, nil
}
