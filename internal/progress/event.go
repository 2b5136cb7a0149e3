// Package progress defines the live progress events emitted by crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart     Stage = "CRAWL_START"
	StageCrawlHeartbeat Stage = "CRAWL_HEARTBEAT"
	StageCrawlDone      Stage = "CRAWL_DONE"
	StageLeadFound      Stage = "LEAD_FOUND"
)

// Event captures a single milestone of crawl progress. Counts are totals for
// the run so far, not deltas.
type Event struct {
	// CrawlID uniquely identifies the run the event belongs to.
	CrawlID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Seed is the originating seed term.
	Seed string
	// Term and Region scope heartbeat and lead events to a matrix cell.
	Term   string
	Region string
	// Leads counts accepted leads so far.
	Leads int
	// Items counts catalog items scanned so far.
	Items int
	// Canceled marks a CRAWL_DONE event for a run stopped mid-flight.
	Canceled bool
	// Note carries low-volume debug context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CrawlID == "" {
		return errors.New("crawl id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlHeartbeat, StageCrawlDone, StageLeadFound:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Leads < 0 || e.Items < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}
