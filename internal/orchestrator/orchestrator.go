// Package orchestrator enforces the single-flight-per-owner task invariant and
// owns each crawl's cancellation lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/scout"
)

// Typed rejections surfaced synchronously to callers.
var (
	// ErrTaskActive rejects a Start while the same owner already has a task
	// in flight.
	ErrTaskActive = errors.New("a crawl is already active for this owner")
	// ErrNotOwner rejects a Stop whose requester does not own the task.
	ErrNotOwner = errors.New("crawl belongs to a different owner")
	// ErrIdle rejects a Stop when no task is running for the owner.
	ErrIdle = errors.New("no crawl is running")
)

// Runner executes one crawl run to completion. The engine satisfies this.
type Runner interface {
	Run(ctx context.Context, crawlID, seed string) scout.ResultBatch
}

// Handle tracks one accepted crawl until it finishes.
type Handle struct {
	CrawlID string
	done    chan struct{}
	result  scout.ResultBatch
}

// Done is closed once the crawl has finished and the owner slot was reset.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the crawl finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (scout.ResultBatch, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return scout.ResultBatch{}, fmt.Errorf("wait for crawl: %w", ctx.Err())
	}
}

type task struct {
	snapshot scout.TaskSnapshot
	cancel   context.CancelFunc
	handle   *Handle
}

// Orchestrator holds the owner-keyed task registry behind a single mutex.
// All TaskSnapshot mutations happen inside that critical section; running
// crawls only observe their context and never touch the registry.
type Orchestrator struct {
	mu    sync.Mutex
	tasks map[scout.OwnerID]*task

	runner     Runner
	idGen      scout.IDGenerator
	clock      scout.Clock
	onComplete func(ctx context.Context, batch scout.ResultBatch)
	logger     *zap.Logger
}

// New constructs an Orchestrator. onComplete, when set, runs after every
// finished crawl (export, publish); its failures never affect task state.
func New(
	runner Runner,
	idGen scout.IDGenerator,
	clock scout.Clock,
	onComplete func(ctx context.Context, batch scout.ResultBatch),
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		tasks:      make(map[scout.OwnerID]*task),
		runner:     runner,
		idGen:      idGen,
		clock:      clock,
		onComplete: onComplete,
		logger:     logger,
	}
}

// Start accepts the seed for the owner's slot and launches the crawl
// asynchronously. The slot reset back to idle is scheduled on every exit path
// before the crawl begins.
func (o *Orchestrator) Start(seed string, owner scout.OwnerID) (*Handle, error) {
	if seed == "" {
		return nil, errors.New("seed term must not be empty")
	}
	if owner == "" {
		return nil, errors.New("owner must not be empty")
	}

	crawlID, err := o.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("allocate crawl id: %w", err)
	}

	o.mu.Lock()
	if _, active := o.tasks[owner]; active {
		o.mu.Unlock()
		return nil, ErrTaskActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{CrawlID: crawlID, done: make(chan struct{})}
	o.tasks[owner] = &task{
		snapshot: scout.TaskSnapshot{
			Phase:     scout.PhaseRunning,
			CrawlID:   crawlID,
			Seed:      seed,
			Owner:     owner,
			StartedAt: o.clock.Now().UTC(),
		},
		cancel: cancel,
		handle: h,
	}
	o.mu.Unlock()

	o.logger.Info("crawl accepted",
		zap.String("crawl_id", crawlID),
		zap.String("seed", seed),
		zap.String("owner", string(owner)),
	)
	go o.run(ctx, cancel, owner, crawlID, seed, h)
	return h, nil
}

// run executes the crawl and guarantees the slot reset on every exit path.
func (o *Orchestrator) run(
	ctx context.Context,
	cancel context.CancelFunc,
	owner scout.OwnerID,
	crawlID, seed string,
	h *Handle,
) {
	var batch scout.ResultBatch
	defer func() {
		o.mu.Lock()
		delete(o.tasks, owner)
		o.mu.Unlock()
		cancel()
		h.result = batch
		close(h.done)
	}()

	batch = o.runner.Run(ctx, crawlID, seed)
	if o.onComplete != nil {
		// Completion side effects run on a fresh context: a canceled crawl
		// still exports and reports its partial batch.
		o.onComplete(context.Background(), batch)
	}
}

// Stop requests cancellation of the owner's running crawl. It is idempotent:
// stopping an already-stopping task is a no-op success.
func (o *Orchestrator) Stop(owner, requester scout.OwnerID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.tasks[owner]
	if !ok {
		return ErrIdle
	}
	if t.snapshot.Owner != requester {
		return ErrNotOwner
	}
	if t.snapshot.Phase == scout.PhaseStopRequested {
		return nil
	}
	t.snapshot.Phase = scout.PhaseStopRequested
	t.cancel()
	o.logger.Info("crawl stop requested",
		zap.String("crawl_id", t.snapshot.CrawlID),
		zap.String("owner", string(owner)),
	)
	return nil
}

// Status returns a read-only snapshot of the owner's slot.
func (o *Orchestrator) Status(owner scout.OwnerID) scout.TaskSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.tasks[owner]; ok {
		return t.snapshot
	}
	return scout.TaskSnapshot{Phase: scout.PhaseIdle, Owner: owner}
}
