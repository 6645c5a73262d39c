// Package api hosts the HTTP server, middleware, and REST handlers for the
// summarization service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs, GET /v1/jobs/{job_id} and POST /v1/jobs/{job_id}/cancel
//     for job submission, polling and cancellation.
//   - GET /v1/conversations/{key}/queue for per-conversation queue depth.
package api
