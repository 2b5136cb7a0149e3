package scout

import (
	"context"
	"time"
)

// Catalog enumerates items for a (term, region) pair and fetches item detail.
// Implementations talk to an external catalog service; both calls may fail per
// unit of work and callers are expected to skip and continue.
type Catalog interface {
	Search(ctx context.Context, term, region string) ([]ItemRef, error)
	Detail(ctx context.Context, id, region string) (ItemDetail, error)
}

// Expander turns a seed term into a broader list of related search terms.
type Expander interface {
	Expand(ctx context.Context, seed string) ([]string, error)
}

// DedupStore persists accepted leads keyed by escaped contact identifier.
// TryReserve must be atomic at the store: the first writer wins and every
// later reservation of the same key reports false.
type DedupStore interface {
	TryReserve(ctx context.Context, key string, lead Lead) (bool, error)
	ReadAll(ctx context.Context) ([]Lead, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// WorkQueue hands out seed terms for auto-chained crawls. PopOne removes the
// item before returning it; a crash after a pop loses that item rather than
// reprocessing it.
type WorkQueue interface {
	Push(ctx context.Context, term string) error
	PopOne(ctx context.Context) (term string, found bool, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
