package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appscout/appscout/internal/filter"
	"github.com/appscout/appscout/internal/progress"
	"github.com/appscout/appscout/internal/scout"
	"github.com/appscout/appscout/internal/store/memory"
)

type fakeExpander struct {
	terms []string
	err   error
}

func (f *fakeExpander) Expand(_ context.Context, seed string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.terms == nil {
		return []string{seed}, nil
	}
	return f.terms, nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	search    map[string][]scout.ItemRef
	searchErr map[string]error
	details   map[string]scout.ItemDetail
	detailErr map[string]error
	onDetail  func(id string)
}

func cell(term, region string) string { return term + "|" + region }

func (f *fakeCatalog) Search(_ context.Context, term, region string) ([]scout.ItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.searchErr[cell(term, region)]; err != nil {
		return nil, err
	}
	return f.search[cell(term, region)], nil
}

func (f *fakeCatalog) Detail(_ context.Context, id, _ string) (scout.ItemDetail, error) {
	f.mu.Lock()
	hook := f.onDetail
	detail, ok := f.details[id]
	err := f.detailErr[id]
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if err != nil {
		return scout.ItemDetail{}, err
	}
	if !ok {
		return scout.ItemDetail{}, errors.New("unknown item")
	}
	return detail, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type reachAll struct{}

func (reachAll) Reachable(context.Context, string) bool { return true }

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []progress.Event
	for _, evt := range c.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func newTestEngine(cat scout.Catalog, store scout.DedupStore, cfg Config, exp scout.Expander) *Engine {
	if exp == nil {
		exp = &fakeExpander{}
	}
	return New(
		exp,
		cat,
		filter.New(100, reachAll{}),
		store,
		&fakeClock{now: time.Unix(1700000000, 0)},
		nil,
		cfg,
		nil,
	)
}

// TestRunFlashlightFixture covers the end-to-end scenario: one zero-review
// item with a valid contact becomes exactly one lead; one item above the
// popularity ceiling is rejected regardless of contact validity.
func TestRunFlashlightFixture(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.torch"}, {ID: "app.popular"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {
				ID: "app.torch", Title: "Torch Lite", Developer: "Acme",
				Email: "dev@example.com", Reviews: 0, Installs: "10+",
			},
			"app.popular": {
				ID: "app.popular", Title: "Mega Torch", Developer: "Acme",
				Email: "mega@example.com", Reviews: 500, Installs: "1M+",
			},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{Regions: []string{"us"}, RegionDelay: time.Millisecond}, nil)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")

	require.False(t, batch.Canceled)
	require.Equal(t, 2, batch.ItemsScanned)
	require.Len(t, batch.Leads, 1)
	lead := batch.Leads[0]
	require.Equal(t, "us", lead.Region)
	require.Equal(t, "dev@example.com", lead.Email)
	require.Equal(t, "dev_at_example_dot_com", lead.Key)
	require.Equal(t, "flashlight", lead.Term)
	require.Equal(t, "flashlight", lead.Seed)
}

// TestRunRecordsSeedOnExpandedTermLeads asserts leads discovered under an
// expanded term still carry the crawl's originating seed, so seed-scoped
// exports can find them later.
func TestRunRecordsSeedOnExpandedTermLeads(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("torch app", "us"): {{ID: "app.torch"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch", Email: "dev@example.com"},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store,
		Config{Regions: []string{"us"}, RegionDelay: time.Millisecond},
		&fakeExpander{terms: []string{"flashlight", "torch app"}},
	)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Len(t, batch.Leads, 1)
	require.Equal(t, "torch app", batch.Leads[0].Term)
	require.Equal(t, "flashlight", batch.Leads[0].Seed)
}

// TestRunSecondRunIsEmpty asserts idempotent dedup: replaying the same fixture
// yields no new leads because the store already holds the reservation.
func TestRunSecondRunIsEmpty(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.torch"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch Lite", Email: "dev@example.com"},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{Regions: []string{"us"}, RegionDelay: time.Millisecond}, nil)

	first := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Len(t, first.Leads, 1)

	second := e.Run(context.Background(), "crawl-2", "flashlight")
	require.Empty(t, second.Leads)
	require.False(t, second.Canceled)
}

// TestRunSearchFailureSkipsCell asserts a failing (term, region) lookup never
// aborts the rest of the crawl.
func TestRunSearchFailureSkipsCell(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "gb"): {{ID: "app.torch"}},
		},
		searchErr: map[string]error{
			cell("flashlight", "us"): errors.New("upstream 503"),
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch Lite", Email: "dev@example.com"},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{Regions: []string{"us", "gb"}, RegionDelay: time.Millisecond}, nil)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Len(t, batch.Leads, 1)
	require.Equal(t, "gb", batch.Leads[0].Region)
}

// TestRunDetailFailureSkipsItem asserts an item whose detail fetch fails is
// dropped while its siblings proceed.
func TestRunDetailFailureSkipsItem(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.broken"}, {ID: "app.torch"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch Lite", Email: "dev@example.com"},
		},
		detailErr: map[string]error{
			"app.broken": errors.New("detail 500"),
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{Regions: []string{"us"}, RegionDelay: time.Millisecond}, nil)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Equal(t, 2, batch.ItemsScanned)
	require.Len(t, batch.Leads, 1)
}

// TestRunItemLevelCancellation cancels mid-region and asserts the run stops at
// the next item checkpoint with a bounded partial batch.
func TestRunItemLevelCancellation(t *testing.T) {
	t.Parallel()

	const totalItems = 100
	const cancelAfter = 5

	refs := make([]scout.ItemRef, 0, totalItems)
	details := make(map[string]scout.ItemDetail, totalItems)
	for i := 0; i < totalItems; i++ {
		id := fmt.Sprintf("app.%03d", i)
		refs = append(refs, scout.ItemRef{ID: id})
		details[id] = scout.ItemDetail{
			ID:    id,
			Title: id,
			Email: fmt.Sprintf("dev%03d@example.com", i),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	fetched := 0
	cat := &fakeCatalog{
		search:  map[string][]scout.ItemRef{cell("flashlight", "us"): refs},
		details: details,
	}
	cat.onDetail = func(string) {
		fetched++
		if fetched == cancelAfter {
			cancel()
		}
	}

	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{Regions: []string{"us"}, RegionDelay: time.Millisecond}, nil)

	batch := e.Run(ctx, "crawl-1", "flashlight")
	require.True(t, batch.Canceled)
	// The item checkpoint runs before each detail fetch, so at most one more
	// item can complete after the signal is set.
	require.LessOrEqual(t, batch.ItemsScanned, cancelAfter+1)
	require.LessOrEqual(t, len(batch.Leads), cancelAfter+1)
}

// TestRunPacingDelayIsInterruptible cancels during the inter-region pause and
// asserts the run returns promptly instead of sleeping out the delay.
func TestRunPacingDelayIsInterruptible(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.torch"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch Lite", Email: "dev@example.com"},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store, Config{
		Regions:     []string{"us", "gb"},
		RegionDelay: time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan scout.ResultBatch, 1)
	go func() {
		done <- e.Run(ctx, "crawl-1", "flashlight")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case batch := <-done:
		require.True(t, batch.Canceled)
		require.Len(t, batch.Leads, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not observe cancellation during pacing delay")
	}
}

// TestRunExpansionFailureStillCrawlsSeed asserts the full region set is still
// walked for the bare seed when expansion errors out entirely.
func TestRunExpansionFailureStillCrawlsSeed(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.torch"}},
			cell("flashlight", "gb"): {{ID: "app.lamp"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch", Email: "a@example.com"},
			"app.lamp":  {ID: "app.lamp", Title: "Lamp", Email: "b@example.com"},
		},
	}
	store := memory.NewLeadStore()
	emitter := &captureEmitter{}
	e := New(
		&fakeExpander{err: errors.New("providers down")},
		cat,
		filter.New(100, reachAll{}),
		store,
		&fakeClock{now: time.Unix(1700000000, 0)},
		emitter,
		Config{Regions: []string{"us", "gb"}, RegionDelay: time.Millisecond},
		nil,
	)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Len(t, batch.Leads, 2)

	starts := emitter.byStage(progress.StageCrawlStart)
	require.Len(t, starts, 1)
	require.Contains(t, starts[0].Note, "expansion unavailable")
}

// TestRunSkipsDuplicateItemsWithinRun asserts the in-run seen set suppresses
// redundant detail fetches when the same item surfaces under several terms.
func TestRunSkipsDuplicateItemsWithinRun(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		search: map[string][]scout.ItemRef{
			cell("flashlight", "us"): {{ID: "app.torch"}},
			cell("torch", "us"):      {{ID: "app.torch"}},
		},
		details: map[string]scout.ItemDetail{
			"app.torch": {ID: "app.torch", Title: "Torch", Email: "dev@example.com"},
		},
	}
	store := memory.NewLeadStore()
	e := newTestEngine(cat, store,
		Config{Regions: []string{"us"}, RegionDelay: time.Millisecond},
		&fakeExpander{terms: []string{"flashlight", "torch"}},
	)

	batch := e.Run(context.Background(), "crawl-1", "flashlight")
	require.Equal(t, 1, batch.ItemsScanned)
	require.Len(t, batch.Leads, 1)
}
