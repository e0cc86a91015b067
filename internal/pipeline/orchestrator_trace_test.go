package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
	"github.com/JakeFAU/recipe-image-enricher/internal/extract"
	"github.com/JakeFAU/recipe-image-enricher/internal/storage/memory"
)

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// Not parallel: installs the global tracer provider.
func TestRunEmitsNestedSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := memory.NewRecipeStore(0,
		memory.Recipe{ID: 7, SourceURL: "https://example.com/found"},
		memory.Recipe{ID: 8, SourceURL: "https://example.com/gone"},
		memory.Recipe{ID: 9, SourceURL: "https://example.com/flaky"},
	)
	fetcher := &fakeFetcher{results: map[string]enrichment.FetchResult{
		"https://example.com/found": enrichment.Content(200, []byte(ogPage)),
		"https://example.com/gone":  enrichment.NotFoundStatus(),
		"https://example.com/flaky": enrichment.OtherError(503, "503 Service Unavailable"),
	}}
	orch, err := New(Config{BatchSize: 10, TotalBatches: 1}, Deps{
		Selector:  store,
		Stats:     store,
		Fetcher:   fetcher,
		Extractor: extract.New(),
		Persister: newPersister(t, store, nil),
		IDs:       fixedIDs("trace-run"),
		Pauser:    &recordingPauser{},
	})
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)

	var run sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if v, ok := spanAttr(s, "run_id"); ok && s.Name() == "enrichment.run" && v.AsString() == "trace-run" {
			run = s
		}
	}
	require.NotNil(t, run)
	v, _ := spanAttr(run, "stop_reason")
	assert.Equal(t, string(enrichment.StopCeiling), v.AsString())

	var (
		batch      sdktrace.ReadOnlySpan
		candidates = map[int64]string{}
	)
	for _, s := range rec.Ended() {
		if s.SpanContext().TraceID() != run.SpanContext().TraceID() {
			continue
		}
		switch s.Name() {
		case "enrichment.batch":
			batch = s
			assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
		case "enrichment.candidate":
			id, _ := spanAttr(s, "recipe_id")
			outcome, _ := spanAttr(s, "outcome")
			candidates[id.AsInt64()] = outcome.AsString()
		}
	}
	require.NotNil(t, batch)
	assert.Equal(t, map[int64]string{
		7: enrichment.OutcomeFound.String(),
		8: enrichment.OutcomeBrokenLink.String(),
		9: enrichment.OutcomeNotFound.String(),
	}, candidates)
}
