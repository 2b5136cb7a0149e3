// Package scout defines core types shared across subsystems.
package scout

import (
	"time"
)

// OwnerID identifies the human or session that holds a task slot. Tasks are
// authorized by comparing OwnerIDs for equality.
type OwnerID string

// TaskPhase represents the lifecycle state of an owner's task slot.
type TaskPhase string

// Task phases reported by the orchestrator.
const (
	PhaseIdle          TaskPhase = "idle"
	PhaseRunning       TaskPhase = "running"
	PhaseStopRequested TaskPhase = "stop_requested"
)

// TaskSnapshot is a read-only view of an owner's task slot.
type TaskSnapshot struct {
	Phase     TaskPhase `json:"phase"`
	CrawlID   string    `json:"crawl_id,omitempty"`
	Seed      string    `json:"seed,omitempty"`
	Owner     OwnerID   `json:"owner,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// ItemRef identifies one catalog item discovered by a search.
type ItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ItemDetail carries the attributes the acceptance filter evaluates.
type ItemDetail struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Developer string  `json:"developer"`
	Email     string  `json:"email"`
	Rating    float64 `json:"rating"`
	Reviews   int     `json:"reviews"`
	Installs  string  `json:"installs"`
}

// Lead is one accepted, deduplicated output record. Leads are immutable after
// creation; a durable copy lives in the dedup store for future-run exclusion.
type Lead struct {
	Key      string    `json:"key"`
	AppName  string    `json:"app_name"`
	AppID    string    `json:"app_id"`
	Email    string    `json:"email"`
	Rating   float64   `json:"rating"`
	Reviews  int       `json:"reviews"`
	Installs string    `json:"installs"`
	Region   string    `json:"region"`
	// Term is the expanded term that surfaced the item; Seed is the crawl's
	// originating seed term.
	Term     string    `json:"term"`
	Seed     string    `json:"seed"`
	FoundAt  time.Time `json:"found_at"`
}

// ResultBatch is the terminal output of one crawl run.
type ResultBatch struct {
	CrawlID      string `json:"crawl_id"`
	Seed         string `json:"seed"`
	Leads        []Lead `json:"leads"`
	ItemsScanned int    `json:"items_scanned"`
	Canceled     bool   `json:"canceled"`
}
