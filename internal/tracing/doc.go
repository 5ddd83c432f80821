// Package tracing owns trace correlation across the queue boundary.
//
// A Context is captured at submission time and stored as explicit fields in
// the queue payload; producer and consumer may be different processes, so
// nothing here relies on ambient goroutine or process state. On claim the
// executor restores the Context as a remote parent and derives one child span
// per stage. Cross-temporal correlations (an earlier upload referencing a
// later enhancement run) use span links rather than parent/child nesting.
package tracing
