package report

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
	"github.com/JakeFAU/recipe-image-enricher/internal/metrics"
)

// PrometheusSink exports batch and run results. Per-batch remaining counts go
// through the shared metrics package; run-level collectors are owned here.
type PrometheusSink struct {
	batchDuration prometheus.Histogram
	batchRecords  *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	records       *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_batch_duration_seconds",
			Help:    "Wall time per batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		batchRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_batch_records_total",
			Help: "Records processed in batches partitioned by result.",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_runs_total",
			Help: "Completed runs partitioned by stop reason.",
		}, []string{"stop_reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_run_duration_seconds",
			Help:    "Wall time per run.",
			Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600},
		}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enricher_records",
			Help: "Record counts from the last run's final statistics.",
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{s.batchDuration, s.batchRecords, s.runs, s.runDuration, s.records} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register report collector: %w", err)
		}
	}
	return s, nil
}

// BatchCompleted implements enrichment.Reporter.
func (s *PrometheusSink) BatchCompleted(_ context.Context, r enrichment.BatchReport) {
	metrics.ObserveBatch(r.Remaining)
	if r.Duration > 0 {
		s.batchDuration.Observe(r.Duration.Seconds())
	}
	s.batchRecords.WithLabelValues("updated").Add(float64(r.Updated))
	s.batchRecords.WithLabelValues("failed").Add(float64(r.Failed))
}

// RunCompleted implements enrichment.Reporter.
func (s *PrometheusSink) RunCompleted(_ context.Context, sum enrichment.RunSummary) {
	s.runs.WithLabelValues(string(sum.StopReason)).Inc()
	if sum.Duration > 0 {
		s.runDuration.Observe(sum.Duration.Seconds())
	}
	if sum.StatsError != "" {
		return
	}
	s.records.WithLabelValues("total").Set(float64(sum.Stats.Total))
	s.records.WithLabelValues("with_image").Set(float64(sum.Stats.WithImage))
	s.records.WithLabelValues("without_image").Set(float64(sum.Stats.WithoutImage))
	s.records.WithLabelValues("placeholder").Set(float64(sum.Stats.Placeholders))
}
