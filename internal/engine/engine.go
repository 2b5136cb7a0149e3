// Package engine implements the crawl loop over the term x region matrix.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/progress"
	"github.com/appscout/appscout/internal/scout"
)

// Acceptor is the acceptance predicate applied to each item detail.
type Acceptor interface {
	Accept(ctx context.Context, detail scout.ItemDetail) (bool, string)
}

// Config controls Engine behavior.
type Config struct {
	// Regions is the ordered market list crawled for every term.
	Regions []string
	// RegionDelay paces catalog calls between region iterations.
	RegionDelay time.Duration
	// ProgressEvery emits a heartbeat after this many scanned items.
	ProgressEvery int
}

const (
	defaultRegionDelay   = 1500 * time.Millisecond
	defaultProgressEvery = 30
)

// Engine runs a single crawl for one seed term. It is stateless between runs;
// all per-run state lives on the stack of Run.
type Engine struct {
	expander scout.Expander
	catalog  scout.Catalog
	filter   Acceptor
	store    scout.DedupStore
	clock    scout.Clock
	emitter  progress.Emitter
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Engine.
func New(
	expander scout.Expander,
	catalog scout.Catalog,
	filter Acceptor,
	store scout.DedupStore,
	clock scout.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.RegionDelay <= 0 {
		cfg.RegionDelay = defaultRegionDelay
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		expander: expander,
		catalog:  catalog,
		filter:   filter,
		store:    store,
		clock:    clock,
		emitter:  emitter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run walks the term x region matrix for one seed. Cancellation is observed
// through ctx at three checkpoints (term, region, item); a canceled run
// returns the partial batch collected so far, never an error. Individual
// lookup failures are skipped without aborting the crawl.
func (e *Engine) Run(ctx context.Context, crawlID, seed string) scout.ResultBatch {
	batch := scout.ResultBatch{CrawlID: crawlID, Seed: seed}

	terms, err := e.expander.Expand(ctx, seed)
	var note string
	if err != nil || len(terms) == 0 {
		// The expander degrades internally; this is a second net.
		e.logger.Warn("term expansion failed, using bare seed", zap.String("seed", seed), zap.Error(err))
		terms = []string{seed}
		note = "expansion unavailable, crawling bare seed"
	}
	e.logger.Info("crawl starting",
		zap.String("crawl_id", crawlID),
		zap.String("seed", seed),
		zap.Int("terms", len(terms)),
		zap.Int("regions", len(e.cfg.Regions)),
	)
	e.emit(progress.Event{CrawlID: crawlID, Stage: progress.StageCrawlStart, Seed: seed, Note: note})

	seen := make(map[string]struct{})
	lastHeartbeat := 0

matrix:
	for _, term := range terms {
		if ctx.Err() != nil {
			break
		}
		for _, region := range e.cfg.Regions {
			if ctx.Err() != nil {
				break matrix
			}
			if !e.crawlCell(ctx, crawlID, &batch, term, region, seen) {
				break matrix
			}
			if batch.ItemsScanned-lastHeartbeat >= e.cfg.ProgressEvery {
				lastHeartbeat = batch.ItemsScanned
				e.emit(progress.Event{
					CrawlID: crawlID,
					Stage:   progress.StageCrawlHeartbeat,
					Seed:    seed,
					Term:    term,
					Region:  region,
					Leads:   len(batch.Leads),
					Items:   batch.ItemsScanned,
				})
			}
			if !e.pause(ctx) {
				break matrix
			}
		}
	}

	batch.Canceled = ctx.Err() != nil
	e.emit(progress.Event{
		CrawlID:  crawlID,
		Stage:    progress.StageCrawlDone,
		Seed:     seed,
		Leads:    len(batch.Leads),
		Items:    batch.ItemsScanned,
		Canceled: batch.Canceled,
	})
	e.logger.Info("crawl finished",
		zap.String("crawl_id", crawlID),
		zap.Int("leads", len(batch.Leads)),
		zap.Int("items", batch.ItemsScanned),
		zap.Bool("canceled", batch.Canceled),
	)
	return batch
}

// crawlCell processes one (term, region) cell. It returns false only when the
// run was canceled; lookup failures report true so the matrix walk continues.
func (e *Engine) crawlCell(
	ctx context.Context,
	crawlID string,
	batch *scout.ResultBatch,
	term, region string,
	seen map[string]struct{},
) bool {
	refs, err := e.catalog.Search(ctx, term, region)
	if err != nil {
		e.logger.Debug("catalog search failed, skipping cell",
			zap.String("term", term),
			zap.String("region", region),
			zap.Error(err),
		)
		return ctx.Err() == nil
	}

	for _, ref := range refs {
		// Item-level checkpoint: the highest-frequency cancellation point,
		// checked before any further I/O.
		if ctx.Err() != nil {
			return false
		}
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		batch.ItemsScanned++
		e.processItem(ctx, crawlID, batch, term, region, ref)
	}
	return true
}

func (e *Engine) processItem(
	ctx context.Context,
	crawlID string,
	batch *scout.ResultBatch,
	term, region string,
	ref scout.ItemRef,
) {
	detail, err := e.catalog.Detail(ctx, ref.ID, region)
	if err != nil {
		e.logger.Debug("detail fetch failed, skipping item", zap.String("item", ref.ID), zap.Error(err))
		return
	}
	ok, reason := e.filter.Accept(ctx, detail)
	if !ok {
		e.logger.Debug("item rejected", zap.String("item", ref.ID), zap.String("reason", reason))
		return
	}

	email := scout.NormalizeEmail(detail.Email)
	lead := scout.Lead{
		Key:      scout.EscapeKey(email),
		AppName:  detail.Title,
		AppID:    detail.ID,
		Email:    email,
		Rating:   detail.Rating,
		Reviews:  detail.Reviews,
		Installs: detail.Installs,
		Region:   region,
		Term:     term,
		Seed:     batch.Seed,
		FoundAt:  e.clock.Now().UTC(),
	}
	reserved, err := e.store.TryReserve(ctx, lead.Key, lead)
	if err != nil {
		e.logger.Warn("dedup reserve failed, skipping item", zap.String("key", lead.Key), zap.Error(err))
		return
	}
	if !reserved {
		return
	}
	batch.Leads = append(batch.Leads, lead)
	e.emit(progress.Event{
		CrawlID: crawlID,
		Stage:   progress.StageLeadFound,
		Seed:    batch.Seed,
		Term:    term,
		Region:  region,
		Leads:   len(batch.Leads),
		Items:   batch.ItemsScanned,
	})
}

// pause waits out the inter-region delay. The wait is itself a cancellation
// checkpoint; it returns false when the run was canceled mid-wait.
func (e *Engine) pause(ctx context.Context) bool {
	timer := time.NewTimer(e.cfg.RegionDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.TS = e.clock.Now().UTC()
	e.emitter.Emit(evt)
}
