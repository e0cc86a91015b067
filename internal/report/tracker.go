package report

import (
	"context"
	"sync"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// Snapshot is the latest progress seen by a Tracker.
type Snapshot struct {
	Batches   int                     `json:"batches"`
	Updated   int                     `json:"updated"`
	Failed    int                     `json:"failed"`
	LastBatch *enrichment.BatchReport `json:"last_batch,omitempty"`
	LastRun   *enrichment.RunSummary  `json:"last_run,omitempty"`
}

// Tracker keeps running totals for the status endpoint.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// BatchCompleted implements enrichment.Reporter.
func (t *Tracker) BatchCompleted(_ context.Context, r enrichment.BatchReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.LastBatch != nil && t.snap.LastBatch.RunID != r.RunID {
		t.snap = Snapshot{LastRun: t.snap.LastRun}
	}
	t.snap.Batches++
	t.snap.Updated += r.Updated
	t.snap.Failed += r.Failed
	t.snap.LastBatch = &r
}

// RunCompleted implements enrichment.Reporter.
func (t *Tracker) RunCompleted(_ context.Context, s enrichment.RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastRun = &s
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.snap
	if out.LastBatch != nil {
		b := *out.LastBatch
		out.LastBatch = &b
	}
	if out.LastRun != nil {
		r := *out.LastRun
		out.LastRun = &r
	}
	return out
}
