package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// NotifySink publishes the final run summary so downstream readers can
// refresh. Batch reports are not published.
type NotifySink struct {
	publisher enrichment.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink returns nil when publisher is nil so callers can pass the
// result straight to New.
func NewNotifySink(publisher enrichment.Publisher, topic string, logger *zap.Logger) enrichment.Reporter {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger.Named("notify")}
}

// BatchCompleted implements enrichment.Reporter.
func (*NotifySink) BatchCompleted(context.Context, enrichment.BatchReport) {}

// RunCompleted publishes the summary as JSON.
func (s *NotifySink) RunCompleted(ctx context.Context, sum enrichment.RunSummary) {
	id, err := s.publisher.Publish(ctx, s.topic, sum)
	if err != nil {
		s.logger.Error("publish run summary failed", zap.String("run_id", sum.RunID), zap.String("topic", s.topic), zap.Error(err))
		return
	}
	s.logger.Info("run summary published", zap.String("run_id", sum.RunID), zap.String("message_id", id))
}
