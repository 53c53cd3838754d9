// Package api hosts the HTTP server, middleware, and REST handlers for the
// search service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes; readiness checks that
//     the browser pool can reach a running browser.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q=&max_results=&enrich=&automation= for searches.
package api
