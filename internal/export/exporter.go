package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/blob"
	"github.com/appscout/appscout/internal/scout"
)

// Exporter renders stored leads to CSV and persists the artifact.
type Exporter struct {
	leads  scout.DedupStore
	store  blob.Store
	prefix string
	clock  scout.Clock
	logger *zap.Logger
}

// Result describes one finished export.
type Result struct {
	URI   string `json:"uri"`
	Leads int    `json:"leads"`
}

// NewExporter constructs an Exporter. Prefix scopes artifact paths inside the
// blob store.
func NewExporter(leads scout.DedupStore, store blob.Store, prefix string, clock scout.Clock, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{leads: leads, store: store, prefix: prefix, clock: clock, logger: logger}
}

// Export writes all stored leads to one CSV artifact. A non-empty seed
// restricts the export to leads found by crawls of that seed, including
// those discovered under expanded terms, and names the file after it.
func (e *Exporter) Export(ctx context.Context, seed string) (Result, error) {
	leads, err := e.leads.ReadAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read leads for export: %w", err)
	}
	if seed != "" {
		filtered := leads[:0]
		for _, lead := range leads {
			if lead.Seed == seed {
				filtered = append(filtered, lead)
			}
		}
		leads = filtered
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, leads); err != nil {
		return Result{}, err
	}

	name := path.Join(e.prefix, FileName(seed, e.clock.Now()))
	uri, err := e.store.PutObject(ctx, name, "text/csv", &buf)
	if err != nil {
		return Result{}, fmt.Errorf("store export artifact: %w", err)
	}

	e.logger.Info("exported leads",
		zap.String("uri", uri),
		zap.Int("leads", len(leads)),
		zap.String("seed", seed),
	)
	return Result{URI: uri, Leads: len(leads)}, nil
}
