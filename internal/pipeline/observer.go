package pipeline

import "time"

// Observer receives execution signals for instrumentation. The metrics
// package satisfies it; the executor defaults to a no-op.
type Observer interface {
	ObserveStage(stage, outcome string, elapsed time.Duration)
	ObserveRetry()
	ObserveFinished(status string)
	ObserveProviderError(code string)
	WorkerStarted()
	WorkerStopped()
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, string, time.Duration) {}
func (nopObserver) ObserveRetry()                              {}
func (nopObserver) ObserveFinished(string)                     {}
func (nopObserver) ObserveProviderError(string)                {}
func (nopObserver) WorkerStarted()                             {}
func (nopObserver) WorkerStopped()                             {}

// SetObserver installs an instrumentation sink. Call before Start.
func (e *Executor) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	e.observer = obs
}
