// Package report fans batch and run results out to log, metric and
// notification sinks. Each sink implements enrichment.Reporter and never
// returns an error to the orchestrator; failures are logged by the sink.
package report

import (
	"context"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// Fanout forwards every report to each sink in order.
type Fanout struct {
	sinks []enrichment.Reporter
}

var _ enrichment.Reporter = (*Fanout)(nil)

// New builds a Fanout, skipping nil sinks.
func New(sinks ...enrichment.Reporter) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of attached sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// BatchCompleted implements enrichment.Reporter.
func (f *Fanout) BatchCompleted(ctx context.Context, r enrichment.BatchReport) {
	for _, s := range f.sinks {
		s.BatchCompleted(ctx, r)
	}
}

// RunCompleted implements enrichment.Reporter.
func (f *Fanout) RunCompleted(ctx context.Context, s enrichment.RunSummary) {
	for _, sink := range f.sinks {
		sink.RunCompleted(ctx, s)
	}
}
