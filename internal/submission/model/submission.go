// Package model defines the submission record and its status transitions.
package model

import (
	"errors"
	"fmt"
	"time"

	"coderank/internal/execution/language"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusRunning           Status = "RUNNING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusTimeout           Status = "TIMEOUT"
	StatusSecurityViolation Status = "SECURITY_VIOLATION"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusTimeout,
	StatusSecurityViolation,
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusSecurityViolation:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a transition is not allowed from the current status.
var ErrInvalidTransition = errors.New("invalid submission status transition")

// Submission is one execution request and its result.
type Submission struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Language        language.Language `json:"language"`
	Source          string            `json:"source_code"`
	Status          Status            `json:"status"`
	Output          string            `json:"output,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	MemoryUsedKB    int64             `json:"memory_used_kb"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Outcome is the terminal data recorded by Complete.
type Outcome struct {
	Status          Status
	Output          string
	ErrorMessage    string
	ExecutionTimeMs int64
	MemoryUsedKB    int64
}

// NewPending creates a PENDING record.
func NewPending(id, owner string, lang language.Language, source string, now time.Time) *Submission {
	return &Submission{
		ID:        id,
		OwnerID:   owner,
		Language:  lang,
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Start moves PENDING to RUNNING.
func (s *Submission) Start() error {
	if s.Status != StatusPending {
		return transitionError(s.Status, StatusRunning)
	}
	s.Status = StatusRunning
	return nil
}

// Complete moves RUNNING to the outcome's terminal status.
func (s *Submission) Complete(outcome Outcome, now time.Time) error {
	switch outcome.Status {
	case StatusCompleted, StatusFailed, StatusTimeout:
	default:
		return transitionError(s.Status, outcome.Status)
	}
	if s.Status != StatusRunning {
		return transitionError(s.Status, outcome.Status)
	}
	s.Status = outcome.Status
	s.Output = outcome.Output
	s.ErrorMessage = outcome.ErrorMessage
	s.ExecutionTimeMs = outcome.ExecutionTimeMs
	s.MemoryUsedKB = outcome.MemoryUsedKB
	s.CompletedAt = &now
	return nil
}

// Fail moves RUNNING to FAILED with message.
func (s *Submission) Fail(message string, now time.Time) error {
	if s.Status != StatusRunning {
		return transitionError(s.Status, StatusFailed)
	}
	s.Status = StatusFailed
	s.ErrorMessage = message
	s.CompletedAt = &now
	return nil
}

// Reject moves PENDING to SECURITY_VIOLATION with reason.
func (s *Submission) Reject(reason string, now time.Time) error {
	if s.Status != StatusPending {
		return transitionError(s.Status, StatusSecurityViolation)
	}
	s.Status = StatusSecurityViolation
	s.ErrorMessage = reason
	s.CompletedAt = &now
	return nil
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
