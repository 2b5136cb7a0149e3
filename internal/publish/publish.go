// Package publish pushes crawl completion notices to downstream consumers.
package publish

import (
	"context"
	"time"
)

// BatchNotice is the payload published after a crawl finishes.
type BatchNotice struct {
	CrawlID      string    `json:"crawl_id"`
	Seed         string    `json:"seed"`
	Leads        int       `json:"leads"`
	ItemsScanned int       `json:"items_scanned"`
	Canceled     bool      `json:"canceled"`
	ExportURI    string    `json:"export_uri,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Publisher pushes completion notices to a message bus (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoOpPublisher drops every notice. Useful for dry runs and local work.
type NoOpPublisher struct{}

// Publish does nothing and reports an empty message ID.
func (NoOpPublisher) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}
