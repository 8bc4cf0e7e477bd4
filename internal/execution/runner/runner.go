// Package runner executes a source file through its language pipeline as local child processes.
package runner

import (
	"context"
	"time"

	"coderank/internal/execution/language"
)

// ExitCodeAbnormal is reported when a program did not exit normally: killed on timeout,
// terminated by a signal or never started because its toolchain is missing.
const ExitCodeAbnormal = -1

// Request describes one execution.
type Request struct {
	Language language.Descriptor
	Source   string
	Stdin    string
	// Timeout bounds the whole pipeline. Zero means the runner default.
	Timeout time.Duration
}

// Result is the observable outcome of one execution.
type Result struct {
	Stdout    string
	Stderr    string
	ElapsedMs int64
	// MemoryKB is the peak resident set size of the largest step, 0 when unknown.
	MemoryKB  int64
	TimedOut  bool
	ExitCode  int
	Truncated bool
}

// Runner executes requests. A returned error means the execution could not be
// carried out at all; program failures and timeouts are reported in Result.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Availability reports whether a language toolchain can be used on this host.
type Availability struct {
	Available bool   `json:"available"`
	Details   string `json:"details"`
}

// Prober checks toolchain availability.
type Prober interface {
	Probe(ctx context.Context, lang language.Descriptor) Availability
}
