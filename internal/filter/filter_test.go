package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appscout/appscout/internal/scout"
)

type stubChecker struct {
	reachable map[string]bool
}

func (s *stubChecker) Reachable(_ context.Context, domain string) bool {
	return s.reachable[domain]
}

func TestAcceptPopularityBoundary(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{reachable: map[string]bool{"example.com": true}}
	f := New(100, checker)

	detail := scout.ItemDetail{Email: "dev@example.com"}

	detail.Reviews = 100
	ok, reason := f.Accept(context.Background(), detail)
	require.False(t, ok)
	require.Equal(t, "popularity at or above ceiling", reason)

	detail.Reviews = 99
	ok, reason = f.Accept(context.Background(), detail)
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestAcceptContactValidation(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{reachable: map[string]bool{"good.io": true}}
	f := New(100, checker)

	cases := []struct {
		name   string
		email  string
		reason string
	}{
		{"missing", "", "no contact identifier"},
		{"no at sign", "not-an-email", "malformed contact identifier"},
		{"bare domain", "dev@localhost", "malformed contact identifier"},
		{"unreachable domain", "dev@dead.example", "contact domain unreachable"},
		{"valid", "dev@good.io", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ok, reason := f.Accept(context.Background(), scout.ItemDetail{Email: tc.email})
			require.Equal(t, tc.reason == "", ok)
			require.Equal(t, tc.reason, reason)
		})
	}
}

func TestAcceptNormalizesBeforeValidating(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{reachable: map[string]bool{"example.com": true}}
	f := New(100, checker)

	ok, _ := f.Accept(context.Background(), scout.ItemDetail{Email: "  Dev@Example.COM "})
	require.True(t, ok)
}

func TestNewDefaultsCeilingToZeroReviewHunt(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{reachable: map[string]bool{"example.com": true}}
	f := New(0, checker)

	ok, _ := f.Accept(context.Background(), scout.ItemDetail{Email: "dev@example.com", Reviews: 0})
	require.True(t, ok)

	ok, _ = f.Accept(context.Background(), scout.ItemDetail{Email: "dev@example.com", Reviews: 1})
	require.False(t, ok)
}
