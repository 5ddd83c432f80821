// Package pipeline advances enhancement jobs through the ordered
// stages.
//
// The Executor runs a pool of workers, each claiming one job at a time
// from the queue. A claimed job moves through upload confirmation,
// analysis, planning, generation, and composition; every stage runs
// under its configured timeout with a heartbeat loop keeping the lease
// fresh. Cooperative cancellation and daemon shutdown are honored at
// stage boundaries only, so a stage that has started always runs to its
// own conclusion. Retryable failures are released back to the queue
// with exponential backoff; everything else is terminal.
package pipeline
