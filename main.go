// Command acra-collector receives ACRA crash reports over HTTP.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST {report_path} and hands the
//     body to the dispatcher, then waits for the outcome and answers 200 or
//     500 with an empty body.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by
//     queue_depth and are fanned out to a fixed worker pool sized by workers.
//   - Pipeline: each worker appends the raw payload to the crash log, decodes
//     it, renders the notification and sends it over SMTP with mandatory TLS.
//     A failure stops the pipeline; nothing is retried.
//   - Plumbing: viper loads config.json (ACRA_* env overrides), zap logs carry
//     request IDs and payload digests, Prometheus metrics are served on
//     /metrics and every request gets an OpenTelemetry span.
//
// Run locally: go run . serve --config config.json
package main

import (
	"github.com/JakeFAU/acra-collector/cmd"
)

func main() {
	cmd.Execute()
}
