// Package api serves operator endpoints while a run is in progress:
//   - GET /healthz for liveness.
//   - GET /readyz pings the recipe store.
//   - GET /metrics for Prometheus scraping.
//   - GET /status returns the latest batch and run reports.
package api
