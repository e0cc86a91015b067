// Package main hosts the recipe image enricher batch job.
//
// Architecture overview:
//   - Selection: recipes whose image column is NULL are read from Postgres in id order, one batch at a time,
//     at offset batchIndex*batch_size. Each invocation starts again at offset 0; finished recipes drop out of the
//     eligible set on their own.
//   - Fetch & extract: every candidate's source page is fetched once through the Colly fetcher (fixed user agent,
//     request timeout, optional robots.txt and per-host token bucket). The body is handed to an ordered chain of
//     goquery heuristics (og:image, twitter:image, recipe image, post thumbnail, itemprop image, first article img).
//   - Classify & persist: a 404 writes the placeholder sentinel, a match writes the extracted URL verbatim, and any
//     other failure leaves the row untouched so a later run retries it. With enricher.max_attempts > 0, misses are
//     counted in an attempts table and capped records stop being selected.
//   - Pacing: candidates run strictly one at a time with enricher.pacing_delay_ms between them. SIGINT/SIGTERM stop
//     the run within one pacing interval and still emit the final statistics.
//   - Reporting: zap logs one line per candidate, batch and run; Prometheus collectors and a /status snapshot are
//     served on metrics.addr while the job runs; the run summary can be published to Pub/Sub. Unmatched pages can be
//     archived to a local directory or GCS for heuristic work.
//   - Tracing: run, batch and candidate spans are created in process only (no exporter is configured); the run's
//     trace context travels in the Pub/Sub message attributes so subscribers can continue the trace.
//
// Quick checklist:
//   - Configure env vars: ENRICHER_DB_DSN (required), ENRICHER_ENRICHER_BATCH_SIZE, ENRICHER_ENRICHER_TOTAL_BATCHES,
//     ENRICHER_ENRICHER_PACING_DELAY_MS, ENRICHER_HTTP_TIMEOUT_MS, ENRICHER_ARCHIVE_PROVIDER, ENRICHER_NOTIFY_PROVIDER,
//     ENRICHER_METRICS_ADDR.
//   - Run locally: go run ./cmd/enricher -config config.yaml (or rely solely on env overrides).
//   - Exit status is 1 only when setup fails (bad config, database unreachable, provider init error).
package main
