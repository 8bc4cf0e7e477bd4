// Package observer defines metrics hooks for execution and submission processing.
package observer

import "context"

// Run outcomes reported by the runner.
const (
	OutcomeOK          = "ok"
	OutcomeNonZero     = "nonzero_exit"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Recorder records execution metrics.
type Recorder interface {
	ObserveRun(ctx context.Context, languageID, outcome string, elapsedMs, memoryKB int64)
	ObserveSubmission(ctx context.Context, languageID, status string)
	SetQueueDepth(n int)
	AddActiveWorkers(delta int)
	ObserveAdmissionDenied(ctx context.Context, role string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveRun(context.Context, string, string, int64, int64) {}
func (Nop) ObserveSubmission(context.Context, string, string)       {}
func (Nop) SetQueueDepth(int)                                        {}
func (Nop) AddActiveWorkers(int)                                     {}
func (Nop) ObserveAdmissionDenied(context.Context, string)           {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
