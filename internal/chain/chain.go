// Package chain drains the external work queue by running crawls back to back.
package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/metrics"
	"github.com/appscout/appscout/internal/scout"
)

// Waiter blocks until one accepted crawl finishes.
type Waiter interface {
	Wait(ctx context.Context) (scout.ResultBatch, error)
}

// Starter admits one crawl for an owner. The orchestrator satisfies this via a
// thin adapter in the app wiring.
type Starter interface {
	Start(seed string, owner scout.OwnerID) (Waiter, error)
}

// Termination reasons reported by RunChain.
const (
	ReasonQueueEmpty    = "queue empty"
	ReasonCanceled      = "crawl canceled"
	ReasonStopRequested = "stop requested"
)

// Report summarizes one finished chain.
type Report struct {
	Crawls int    `json:"crawls"`
	Leads  int    `json:"leads"`
	Reason string `json:"reason"`
}

// Controller chains crawls from the work queue as one explicit loop, so
// "stop mid-chain" is a single flag check between iterations and long queues
// never grow the call stack.
type Controller struct {
	queue   scout.WorkQueue
	starter Starter
	pause   time.Duration
	logger  *zap.Logger
}

const defaultPause = 2 * time.Second

// New constructs a Controller.
func New(queue scout.WorkQueue, starter Starter, pause time.Duration, logger *zap.Logger) *Controller {
	if pause <= 0 {
		pause = defaultPause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{queue: queue, starter: starter, pause: pause, logger: logger}
}

// RunChain pops seed terms and runs one crawl per term until the queue is
// empty, a crawl was canceled, the ctx ended, or the queue failed. Each item
// is removed before its crawl runs: a crash between pop and start drops that
// item rather than reprocessing it, an accepted at-most-once tradeoff.
// Queue errors terminate the chain instead of retrying, so an unreachable
// backend cannot produce a tight error loop.
func (c *Controller) RunChain(ctx context.Context, owner scout.OwnerID) (Report, error) {
	var report Report
	for {
		if ctx.Err() != nil {
			report.Reason = ReasonStopRequested
			return report, nil
		}

		term, found, err := c.queue.PopOne(ctx)
		if err != nil {
			return report, fmt.Errorf("pop work item: %w", err)
		}
		metrics.ObserveQueuePop(found)
		if !found {
			c.logger.Info("work queue drained", zap.Int("crawls", report.Crawls))
			report.Reason = ReasonQueueEmpty
			return report, nil
		}

		c.logger.Info("chain picked work item",
			zap.String("seed", term),
			zap.String("owner", string(owner)),
		)
		handle, err := c.starter.Start(term, owner)
		if err != nil {
			return report, fmt.Errorf("start chained crawl: %w", err)
		}
		metrics.ObserveChainCrawl()
		batch, err := handle.Wait(ctx)
		if err != nil {
			return report, err
		}

		report.Crawls++
		report.Leads += len(batch.Leads)
		if batch.Canceled {
			report.Reason = ReasonCanceled
			return report, nil
		}
		if !c.rest(ctx) {
			report.Reason = ReasonStopRequested
			return report, nil
		}
	}
}

func (c *Controller) rest(ctx context.Context) bool {
	timer := time.NewTimer(c.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
