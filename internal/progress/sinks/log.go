// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/progress"
)

// LogSink emits structured logs for crawl progress streams. It is the default
// sink so operators always see live progress even without metrics scraping.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("crawl_id", evt.CrawlID),
		zap.String("stage", string(evt.Stage)),
		zap.String("seed", evt.Seed),
		zap.Int("leads", evt.Leads),
		zap.Int("items", evt.Items),
	}
	if evt.Term != "" {
		fields = append(fields, zap.String("term", evt.Term), zap.String("region", evt.Region))
	}
	if evt.Stage == progress.StageCrawlDone {
		fields = append(fields, zap.Bool("canceled", evt.Canceled))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	s.logger.Info("crawl progress", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
