// Package api hosts the HTTP server and middleware. Routes:
//   - POST {report_path} (default /report) accepts one ACRA crash report and
//     answers 200 or 500 with an empty body once it has been logged and
//     mailed, or has failed.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
