package enrichment

import (
	"errors"
	"time"
)

// DefaultPlaceholderImageURL is written for recipes whose source page returned 404.
const DefaultPlaceholderImageURL = "https://via.placeholder.com/600x400/FF9933/FFFFFF?text=Recipe+Image"

var (
	// ErrRecordNotFound is returned when a keyed update matched no record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidBatch is returned for a non-positive limit or a negative offset.
	ErrInvalidBatch = errors.New("invalid batch window")
)

// Candidate is a snapshot of a recipe that has no image yet.
type Candidate struct {
	ID        int64
	Name      string
	SourceURL string
}

// FetchStatus classifies the transport-level result of a page fetch.
type FetchStatus int

// Fetch statuses reported by a Fetcher.
const (
	FetchContent FetchStatus = iota
	FetchNotFound
	FetchError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchContent:
		return "content"
	case FetchNotFound:
		return "not_found"
	case FetchError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchResult is what a Fetcher hands back for one URL. Body is only set for
// FetchContent; Description is only set for FetchError.
type FetchResult struct {
	Status      FetchStatus
	StatusCode  int
	Body        []byte
	Description string
	Duration    time.Duration
}

// Content builds a successful FetchResult.
func Content(code int, body []byte) FetchResult {
	return FetchResult{Status: FetchContent, StatusCode: code, Body: body}
}

// NotFoundStatus builds a FetchResult for a page the remote reports as missing.
func NotFoundStatus() FetchResult {
	return FetchResult{Status: FetchNotFound, StatusCode: 404}
}

// OtherError builds a FetchResult for any other failure.
func OtherError(code int, description string) FetchResult {
	return FetchResult{Status: FetchError, StatusCode: code, Description: description}
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeFound
	OutcomeBrokenLink
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeBrokenLink:
		return "broken_link"
	default:
		return "not_found"
	}
}

// MissReason explains a NotFound outcome. It never changes how the outcome is
// persisted.
type MissReason string

// Miss reasons.
const (
	MissNone       MissReason = ""
	MissFetchError MissReason = "fetch_error"
	MissNoMatch    MissReason = "no_match"
)

// Outcome is the classified result of one enrichment attempt.
type Outcome struct {
	Kind      OutcomeKind
	ImageURL  string
	Heuristic string
	Reason    MissReason
	Detail    string
}

// Found builds a Found outcome.
func Found(imageURL, heuristic string) Outcome {
	return Outcome{Kind: OutcomeFound, ImageURL: imageURL, Heuristic: heuristic}
}

// BrokenLink builds a BrokenLink outcome.
func BrokenLink() Outcome {
	return Outcome{Kind: OutcomeBrokenLink}
}

// NotFound builds a NotFound outcome.
func NotFound(reason MissReason, detail string) Outcome {
	return Outcome{Kind: OutcomeNotFound, Reason: reason, Detail: detail}
}

// Match is a successful extraction.
type Match struct {
	ImageURL  string
	Heuristic string
}

// ImageStats summarises the image column across the whole record store.
type ImageStats struct {
	Total        int64 `json:"total"`
	WithImage    int64 `json:"with_image"`
	WithoutImage int64 `json:"without_image"`
	Placeholders int64 `json:"placeholders"`
}

// BatchReport aggregates one batch.
type BatchReport struct {
	RunID        string        `json:"run_id"`
	BatchIndex   int           `json:"batch_index"`
	TotalBatches int           `json:"total_batches"`
	Offset       int           `json:"offset"`
	Selected     int           `json:"selected"`
	Updated      int           `json:"updated"`
	Failed       int           `json:"failed"`
	Found        int           `json:"found"`
	BrokenLinks  int           `json:"broken_links"`
	Misses       int           `json:"misses"`
	PersistErrs  int           `json:"persist_errors"`
	Remaining    int64         `json:"remaining"`
	Duration     time.Duration `json:"duration"`
}

// StopReason records why a run left the batch loop.
type StopReason string

// Stop reasons.
const (
	StopExhausted StopReason = "exhausted"
	StopCeiling   StopReason = "ceiling"
	StopCanceled  StopReason = "canceled"
)

// RunSummary is the final report of one invocation.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	BatchesRun int           `json:"batches_run"`
	Processed  int           `json:"processed"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	StopReason StopReason    `json:"stop_reason"`
	Stats      ImageStats    `json:"stats"`
	StatsError string        `json:"stats_error,omitempty"`
	Duration   time.Duration `json:"duration"`
}
