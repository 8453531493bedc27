// Package api hosts the operator HTTP server that runs alongside a catalog
// build. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the progress snapshot of the current build.
package api
