// Package queue persists enhancement jobs and batches in SQLite and provides
// the scheduling primitives the pipeline workers rely on: priority-then-FIFO
// ordering, atomic claims (exactly one worker per job), retry scheduling with
// backoff timestamps, cooperative cancellation flags, and heartbeat-based
// reclaim of jobs whose worker died.
//
// Status transitions are pending → processing → {completed|failed|cancelled}.
// Terminal states never re-transition; the store enforces this by guarding
// every transition query with the expected prior status.
package queue
