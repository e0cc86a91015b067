package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
	"github.com/JakeFAU/recipe-image-enricher/internal/metrics"
)

const (
	defaultBatchSize    = 50
	defaultTotalBatches = 10
	defaultPacingDelay  = 400 * time.Millisecond
	defaultStatsTimeout = 10 * time.Second
	archiveContentType  = "text/html; charset=utf-8"
)

var tracer = otel.Tracer("github.com/JakeFAU/recipe-image-enricher/internal/pipeline")

// State is a position in the orchestrator's run state machine.
type State int32

// Orchestrator states.
const (
	StateIdle State = iota
	StateRunningBatch
	StateEvaluating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunningBatch:
		return "running_batch"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config controls batch sizing, pacing and the miss archive.
type Config struct {
	BatchSize     int
	TotalBatches  int
	PacingDelay   time.Duration
	ArchivePrefix string
	// StatsTimeout bounds the final statistics query of a canceled run.
	StatsTimeout time.Duration
}

// Deps are the collaborators an Orchestrator drives. Archive, Reporter,
// Clock, IDs, Pauser and Logger are optional.
type Deps struct {
	Selector  enrichment.CandidateSelector
	Stats     enrichment.StatsReader
	Fetcher   enrichment.Fetcher
	Extractor enrichment.Extractor
	Persister *enrichment.Persister
	Archive   enrichment.BlobStore
	Reporter  enrichment.Reporter
	Clock     enrichment.Clock
	IDs       enrichment.IDGenerator
	Pauser    Pauser
	Logger    *zap.Logger
}

// Orchestrator runs the select, process, evaluate loop until the candidate
// set is exhausted, the batch ceiling is reached, or the context ends.
type Orchestrator struct {
	cfg       Config
	deps      Deps
	scheduler *Scheduler
	logger    *zap.Logger
	state     atomic.Int32
}

// New validates deps and fills in defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Selector == nil:
		return nil, errors.New("candidate selector is required")
	case deps.Stats == nil:
		return nil, errors.New("stats reader is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Persister == nil:
		return nil, errors.New("persister is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.TotalBatches <= 0 {
		cfg.TotalBatches = defaultTotalBatches
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = defaultPacingDelay
	}
	if cfg.StatsTimeout <= 0 {
		cfg.StatsTimeout = defaultStatsTimeout
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if deps.IDs == nil {
		deps.IDs = &sequenceIDs{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		scheduler: NewScheduler(cfg.PacingDelay, deps.Pauser),
		logger:    deps.Logger.Named("orchestrator"),
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Scheduler exposes the pacing scheduler so the delay can be changed mid-run.
func (o *Orchestrator) Scheduler() *Scheduler {
	return o.scheduler
}

func (o *Orchestrator) transition(to State) {
	from := State(o.state.Swap(int32(to)))
	if from != to {
		o.logger.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
}

// batchTally accumulates counts for one batch.
type batchTally struct {
	processed   int
	updated     int
	failed      int
	found       int
	brokenLinks int
	misses      int
	persistErrs int
}

// Run executes one invocation. It returns the final summary, and the context
// error when the run was canceled.
func (o *Orchestrator) Run(ctx context.Context) (enrichment.RunSummary, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return enrichment.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := o.logger.With(zap.String("run_id", runID))
	ctx, span := tracer.Start(ctx, "enrichment.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()
	started := o.deps.Clock.Now()
	summary := enrichment.RunSummary{RunID: runID, StartedAt: started}

	o.transition(StateIdle)
	logger.Info("run started",
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Int("total_batches", o.cfg.TotalBatches),
		zap.Duration("pacing_delay", o.scheduler.Delay()),
	)

	batchIndex := 0
	var report enrichment.BatchReport
	for o.State() != StateStopped {
		switch o.State() {
		case StateIdle:
			batchIndex = 0
			o.transition(StateRunningBatch)

		case StateRunningBatch:
			report = o.runBatch(ctx, logger, runID, batchIndex)
			summary.BatchesRun++
			summary.Processed += report.Updated + report.Failed
			summary.Updated += report.Updated
			summary.Failed += report.Failed
			o.transition(StateEvaluating)

		case StateEvaluating:
			next, stop := o.evaluate(ctx, logger, &report, batchIndex)
			o.deps.Reporter.BatchCompleted(ctx, report)
			if stop != "" {
				summary.StopReason = stop
				o.transition(StateStopped)
				continue
			}
			batchIndex = next
			o.transition(StateRunningBatch)
		}
	}

	o.finish(ctx, logger, &summary)
	span.SetAttributes(
		attribute.String("stop_reason", string(summary.StopReason)),
		attribute.Int("batches", summary.BatchesRun),
		attribute.Int("updated", summary.Updated),
		attribute.Int("failed", summary.Failed),
	)
	if summary.StopReason == enrichment.StopCanceled {
		return summary, ctx.Err()
	}
	return summary, nil
}

// evaluate decides what follows a batch and fills in report.Remaining.
func (o *Orchestrator) evaluate(
	ctx context.Context,
	logger *zap.Logger,
	report *enrichment.BatchReport,
	batchIndex int,
) (int, enrichment.StopReason) {
	report.Remaining = -1
	if ctx.Err() != nil {
		return batchIndex, enrichment.StopCanceled
	}
	remaining, err := o.deps.Selector.CountMissingImage(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return batchIndex, enrichment.StopCanceled
	case err != nil:
		logger.Error("count remaining failed", zap.Int("batch", batchIndex), zap.Error(err))
	default:
		report.Remaining = remaining
		if remaining == 0 {
			return batchIndex, enrichment.StopExhausted
		}
	}
	if batchIndex+1 >= o.cfg.TotalBatches {
		return batchIndex, enrichment.StopCeiling
	}
	return batchIndex + 1, ""
}

func (o *Orchestrator) runBatch(ctx context.Context, logger *zap.Logger, runID string, batchIndex int) enrichment.BatchReport {
	started := o.deps.Clock.Now()
	offset := batchIndex * o.cfg.BatchSize
	ctx, span := tracer.Start(ctx, "enrichment.batch", trace.WithAttributes(
		attribute.Int("batch_index", batchIndex),
		attribute.Int("offset", offset),
	))
	defer span.End()
	report := enrichment.BatchReport{
		RunID:        runID,
		BatchIndex:   batchIndex,
		TotalBatches: o.cfg.TotalBatches,
		Offset:       offset,
	}
	batchLogger := logger.With(zap.Int("batch", batchIndex+1), zap.Int("offset", offset))

	candidates, err := o.deps.Selector.SelectMissingImage(ctx, o.cfg.BatchSize, offset)
	if err != nil {
		batchLogger.Error("select candidates failed", zap.Error(err))
		candidates = nil
	}
	report.Selected = len(candidates)
	batchLogger.Info("batch started", zap.Int("candidates", len(candidates)))

	var tally batchTally
	tasks := make([]Task, 0, len(candidates))
	for _, c := range candidates {
		tasks = append(tasks, func(ctx context.Context) {
			o.processCandidate(ctx, batchLogger, runID, c, &tally)
		})
	}
	if _, err := o.scheduler.Run(ctx, tasks); err != nil {
		batchLogger.Warn("batch interrupted", zap.Int("processed", tally.processed), zap.Error(err))
	}

	report.Updated = tally.updated
	report.Failed = tally.failed
	report.Found = tally.found
	report.BrokenLinks = tally.brokenLinks
	report.Misses = tally.misses
	report.PersistErrs = tally.persistErrs
	report.Duration = o.deps.Clock.Now().Sub(started)
	span.SetAttributes(
		attribute.Int("selected", report.Selected),
		attribute.Int("updated", report.Updated),
		attribute.Int("failed", report.Failed),
	)
	return report
}

func (o *Orchestrator) processCandidate(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	c enrichment.Candidate,
	tally *batchTally,
) {
	log := logger.With(
		zap.Int64("recipe_id", c.ID),
		zap.String("recipe", c.Name),
		zap.String("url", c.SourceURL),
	)

	ctx, span := tracer.Start(ctx, "enrichment.candidate", trace.WithAttributes(
		attribute.Int64("recipe_id", c.ID),
		attribute.String("url", c.SourceURL),
	))
	defer span.End()

	res := o.deps.Fetcher.Fetch(ctx, c.SourceURL)
	if ctx.Err() != nil {
		log.Debug("candidate abandoned", zap.Error(ctx.Err()))
		return
	}

	var (
		match   enrichment.Match
		matched bool
	)
	if res.Status == enrichment.FetchContent {
		match, matched = o.deps.Extractor.Extract(res.Body)
	}
	outcome := enrichment.Classify(res, match, matched)
	tally.processed++
	span.SetAttributes(
		attribute.String("fetch_status", res.Status.String()),
		attribute.String("outcome", outcome.Kind.String()),
	)

	written, err := o.deps.Persister.Persist(ctx, c.ID, outcome)
	metrics.ObserveOutcome(outcome.Kind.String(), string(outcome.Reason))

	switch outcome.Kind {
	case enrichment.OutcomeFound:
		metrics.ObserveHeuristicMatch(outcome.Heuristic)
	case enrichment.OutcomeNotFound:
		tally.misses++
		if outcome.Reason == enrichment.MissNoMatch {
			o.archive(ctx, log, runID, c.ID, res.Body)
		}
	}

	if err != nil {
		tally.failed++
		tally.persistErrs++
		metrics.ObservePersistError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		log.Error("persist failed", zap.Stringer("outcome", outcome.Kind), zap.Error(err))
		return
	}

	switch outcome.Kind {
	case enrichment.OutcomeFound:
		tally.updated++
		tally.found++
		log.Info("image found",
			zap.String("outcome", outcome.Kind.String()),
			zap.String("heuristic", outcome.Heuristic),
			zap.String("image_url", written),
		)
	case enrichment.OutcomeBrokenLink:
		tally.updated++
		tally.brokenLinks++
		log.Info("broken link, placeholder written",
			zap.String("outcome", outcome.Kind.String()),
			zap.String("image_url", written),
		)
	default:
		tally.failed++
		fields := []zap.Field{
			zap.String("outcome", outcome.Kind.String()),
			zap.String("reason", string(outcome.Reason)),
		}
		if outcome.Detail != "" {
			fields = append(fields, zap.String("detail", outcome.Detail))
		}
		if res.StatusCode != 0 {
			fields = append(fields, zap.Int("status", res.StatusCode))
		}
		log.Warn("no image", fields...)
	}
}

func (o *Orchestrator) archive(ctx context.Context, log *zap.Logger, runID string, id int64, body []byte) {
	if o.deps.Archive == nil || len(body) == 0 {
		return
	}
	key := archiveKey(o.cfg.ArchivePrefix, runID, id)
	uri, err := o.deps.Archive.PutObject(ctx, key, archiveContentType, bytes.NewReader(body))
	if err != nil {
		metrics.ObserveArchiveError()
		log.Warn("archive page failed", zap.String("key", key), zap.Error(err))
		return
	}
	log.Debug("page archived", zap.String("uri", uri))
}

func archiveKey(prefix, runID string, id int64) string {
	prefix = strings.Trim(prefix, "/")
	name := strconv.FormatInt(id, 10) + ".html"
	if prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(prefix, runID, name)
}

func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, summary *enrichment.RunSummary) {
	finalCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finalCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StatsTimeout)
		defer cancel()
	}

	stats, err := o.deps.Stats.ImageStats(finalCtx, o.deps.Persister.Placeholder())
	if err != nil {
		summary.StatsError = err.Error()
		logger.Error("final statistics failed", zap.Error(err))
	} else {
		summary.Stats = stats
	}
	summary.FinishedAt = o.deps.Clock.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)

	o.deps.Reporter.RunCompleted(finalCtx, *summary)
}

type nopReporter struct{}

func (nopReporter) BatchCompleted(context.Context, enrichment.BatchReport) {}
func (nopReporter) RunCompleted(context.Context, enrichment.RunSummary)    {}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type sequenceIDs struct{ n atomic.Int64 }

func (s *sequenceIDs) NewID() (string, error) {
	return "run-" + strconv.FormatInt(s.n.Add(1), 10), nil
}
