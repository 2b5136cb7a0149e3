package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestObserveHelpersBeforeInit asserts the domain helpers are safe to call
// from packages that never expose the metrics endpoint.
func TestObserveHelpersBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		ObserveExpansionAttempt("ok")
		ObserveQueuePop(true)
		ObserveChainCrawl()
	})
}

func TestObserveExpansionAttemptCounts(t *testing.T) {
	Init()

	before := testutil.ToFloat64(expansionAttemptsTotal.WithLabelValues("rate_limited"))
	ObserveExpansionAttempt("rate_limited")
	after := testutil.ToFloat64(expansionAttemptsTotal.WithLabelValues("rate_limited"))
	require.Equal(t, before+1, after)
}

func TestObserveQueuePopCountsByResult(t *testing.T) {
	Init()

	foundBefore := testutil.ToFloat64(queuePopsTotal.WithLabelValues("found"))
	emptyBefore := testutil.ToFloat64(queuePopsTotal.WithLabelValues("empty"))
	ObserveQueuePop(true)
	ObserveQueuePop(false)
	require.Equal(t, foundBefore+1, testutil.ToFloat64(queuePopsTotal.WithLabelValues("found")))
	require.Equal(t, emptyBefore+1, testutil.ToFloat64(queuePopsTotal.WithLabelValues("empty")))
}

func TestObserveChainCrawlCounts(t *testing.T) {
	Init()

	before := testutil.ToFloat64(chainCrawlsTotal)
	ObserveChainCrawl()
	require.Equal(t, before+1, testutil.ToFloat64(chainCrawlsTotal))
}
