package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appscout/appscout/internal/scout"
	"github.com/appscout/appscout/internal/store/memory"
)

type immediateWaiter struct {
	batch scout.ResultBatch
}

func (w immediateWaiter) Wait(context.Context) (scout.ResultBatch, error) {
	return w.batch, nil
}

type fakeStarter struct {
	mu      sync.Mutex
	seeds   []string
	batches map[string]scout.ResultBatch
	err     error
}

func (f *fakeStarter) Start(seed string, _ scout.OwnerID) (Waiter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.seeds = append(f.seeds, seed)
	batch, ok := f.batches[seed]
	if !ok {
		batch = scout.ResultBatch{Seed: seed}
	}
	return immediateWaiter{batch: batch}, nil
}

func (f *fakeStarter) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seeds...)
}

func TestRunChainDrainsQueueInOrder(t *testing.T) {
	t.Parallel()

	queue := memory.NewWorkQueue("a", "b")
	starter := &fakeStarter{}
	c := New(queue, starter, time.Millisecond, nil)

	report, err := c.RunChain(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, ReasonQueueEmpty, report.Reason)
	require.Equal(t, 2, report.Crawls)
	// Exactly two starts, in queue order; never a third.
	require.Equal(t, []string{"a", "b"}, starter.started())
}

func TestRunChainStopsOnCanceledCrawl(t *testing.T) {
	t.Parallel()

	queue := memory.NewWorkQueue("a", "b")
	starter := &fakeStarter{
		batches: map[string]scout.ResultBatch{
			"a": {Seed: "a", Canceled: true},
		},
	}
	c := New(queue, starter, time.Millisecond, nil)

	report, err := c.RunChain(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, ReasonCanceled, report.Reason)
	require.Equal(t, 1, report.Crawls)
	require.Equal(t, []string{"a"}, starter.started())

	// The unconsumed item stays queued for the next chain.
	term, found, err := queue.PopOne(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", term)
}

type failingQueue struct{}

func (failingQueue) Push(context.Context, string) error { return nil }

func (failingQueue) PopOne(context.Context) (string, bool, error) {
	return "", false, errors.New("backend unreachable")
}

func TestRunChainTerminatesOnQueueError(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	c := New(failingQueue{}, starter, time.Millisecond, nil)

	_, err := c.RunChain(context.Background(), "owner-1")
	require.Error(t, err)
	require.Empty(t, starter.started())
}

func TestRunChainTerminatesOnStartError(t *testing.T) {
	t.Parallel()

	queue := memory.NewWorkQueue("a")
	starter := &fakeStarter{err: errors.New("slot busy")}
	c := New(queue, starter, time.Millisecond, nil)

	report, err := c.RunChain(context.Background(), "owner-1")
	require.Error(t, err)
	require.Zero(t, report.Crawls)
}

func TestRunChainHonorsContextBeforePopping(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queue := memory.NewWorkQueue("a")
	starter := &fakeStarter{}
	c := New(queue, starter, time.Millisecond, nil)

	report, err := c.RunChain(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, ReasonStopRequested, report.Reason)
	require.Empty(t, starter.started())
}

func TestRunChainSumsLeadCounts(t *testing.T) {
	t.Parallel()

	queue := memory.NewWorkQueue("a", "b")
	starter := &fakeStarter{
		batches: map[string]scout.ResultBatch{
			"a": {Seed: "a", Leads: make([]scout.Lead, 3)},
			"b": {Seed: "b", Leads: make([]scout.Lead, 2)},
		},
	}
	c := New(queue, starter, time.Millisecond, nil)

	report, err := c.RunChain(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 5, report.Leads)
}
