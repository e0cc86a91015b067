package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Persister turns an Outcome into at most one keyed write.
type Persister struct {
	writer      ImageWriter
	attempts    AttemptRecorder
	placeholder string
	clock       Clock
}

// PersisterConfig configures a Persister. Attempts may be nil, in which case
// misses leave no trace in the store.
type PersisterConfig struct {
	Placeholder string
	Attempts    AttemptRecorder
	Clock       Clock
}

// NewPersister builds a Persister around writer.
func NewPersister(writer ImageWriter, cfg PersisterConfig) (*Persister, error) {
	if writer == nil {
		return nil, errors.New("image writer is required")
	}
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholderImageURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = utcClock{}
	}
	return &Persister{
		writer:      writer,
		attempts:    cfg.Attempts,
		placeholder: placeholder,
		clock:       clock,
	}, nil
}

// Placeholder returns the sentinel written for broken links.
func (p *Persister) Placeholder() string {
	return p.placeholder
}

// Persist writes the value implied by outcome and returns it. The returned
// value is empty when nothing was written to the image field. Writing the
// same (id, outcome) twice stores the same value.
func (p *Persister) Persist(ctx context.Context, id int64, outcome Outcome) (string, error) {
	var value string
	switch outcome.Kind {
	case OutcomeFound:
		if outcome.ImageURL == "" {
			return "", fmt.Errorf("persist recipe %d: found outcome without image url", id)
		}
		value = outcome.ImageURL
	case OutcomeBrokenLink:
		value = p.placeholder
	default:
		if p.attempts == nil {
			return "", nil
		}
		if err := p.attempts.RecordMiss(ctx, id, outcome.Reason, p.clock.Now()); err != nil {
			return "", fmt.Errorf("record miss for recipe %d: %w", id, err)
		}
		return "", nil
	}
	if err := p.writer.UpdateImage(ctx, id, value); err != nil {
		return "", fmt.Errorf("persist image for recipe %d: %w", id, err)
	}
	return value, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
