// Package ingest holds the crash-report ingestion pipeline and the contracts
// shared by the HTTP layer, the queue, and the worker pool.
//
// A report moves through a fixed sequence of stages: receive, persist,
// parse, compose, deliver. The first failing stage ends processing; earlier
// side effects (notably the crash log append) are never undone.
package ingest
