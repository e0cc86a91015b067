package enrichment

import (
	"context"
	"io"
	"time"
)

// CandidateSelector reads the slice of recipes that still lack an image.
type CandidateSelector interface {
	// SelectMissingImage returns at most limit candidates ordered by ID,
	// skipping the first offset eligible records.
	SelectMissingImage(ctx context.Context, limit, offset int) ([]Candidate, error)
	// CountMissingImage returns how many records are still eligible.
	CountMissingImage(ctx context.Context) (int64, error)
}

// ImageWriter performs the single keyed write of the image field.
type ImageWriter interface {
	UpdateImage(ctx context.Context, id int64, imageURL string) error
}

// AttemptRecorder remembers unsuccessful attempts without touching the image field.
type AttemptRecorder interface {
	RecordMiss(ctx context.Context, id int64, reason MissReason, at time.Time) error
}

// StatsReader aggregates the image column across the record store.
type StatsReader interface {
	ImageStats(ctx context.Context, placeholder string) (ImageStats, error)
}

// Store is the record store collaborator consumed by the pipeline.
type Store interface {
	CandidateSelector
	ImageWriter
	AttemptRecorder
	StatsReader
	Ping(ctx context.Context) error
}

// Fetcher retrieves one page. Implementations never retry and never return
// an error: every transport failure is folded into the FetchResult.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// Extractor finds an image reference in a fetched page.
type Extractor interface {
	Extract(body []byte) (Match, bool)
}

// Reporter receives per-batch and final statistics.
type Reporter interface {
	BatchCompleted(ctx context.Context, report BatchReport)
	RunCompleted(ctx context.Context, summary RunSummary)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
