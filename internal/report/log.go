package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// LogSink writes one structured line per batch and one for the run.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the reporter interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("report")}
}

// BatchCompleted logs the batch counters.
func (s *LogSink) BatchCompleted(_ context.Context, r enrichment.BatchReport) {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Int("batch", r.BatchIndex+1),
		zap.Int("total_batches", r.TotalBatches),
		zap.Int("offset", r.Offset),
		zap.Int("selected", r.Selected),
		zap.Int("updated", r.Updated),
		zap.Int("failed", r.Failed),
		zap.Int("found", r.Found),
		zap.Int("broken_links", r.BrokenLinks),
		zap.Int("misses", r.Misses),
		zap.Int("persist_errors", r.PersistErrs),
		zap.Duration("duration", r.Duration),
	}
	if r.Remaining >= 0 {
		fields = append(fields, zap.Int64("remaining", r.Remaining))
	}
	s.logger.Info("batch completed", fields...)
}

// RunCompleted logs the final aggregate statistics.
func (s *LogSink) RunCompleted(_ context.Context, sum enrichment.RunSummary) {
	fields := []zap.Field{
		zap.String("run_id", sum.RunID),
		zap.String("stop_reason", string(sum.StopReason)),
		zap.Int("batches", sum.BatchesRun),
		zap.Int("processed", sum.Processed),
		zap.Int("updated", sum.Updated),
		zap.Int("failed", sum.Failed),
		zap.Duration("duration", sum.Duration),
	}
	if sum.StatsError != "" {
		s.logger.Warn("run completed without statistics", append(fields, zap.String("stats_error", sum.StatsError))...)
		return
	}
	fields = append(fields,
		zap.Int64("total_recipes", sum.Stats.Total),
		zap.Int64("with_image", sum.Stats.WithImage),
		zap.Int64("without_image", sum.Stats.WithoutImage),
		zap.Int64("placeholders", sum.Stats.Placeholders),
	)
	s.logger.Info("run completed", fields...)
}
