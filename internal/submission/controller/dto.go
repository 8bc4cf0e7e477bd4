package controller

import (
	"time"

	"coderank/internal/submission/model"
)

// ExecuteRequest is the body of POST /execute. Code is not required here so
// that empty code is recorded as a rejected submission.
type ExecuteRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// SubmissionView is the wire form of a submission.
type SubmissionView struct {
	SubmissionID    string     `json:"submission_id"`
	Language        string     `json:"language"`
	Status          string     `json:"status"`
	SourceCode      string     `json:"source_code,omitempty"`
	Output          string     `json:"output"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	MemoryUsedKB    int64      `json:"memory_used_kb"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toView(s *model.Submission, withSource bool) SubmissionView {
	view := SubmissionView{
		SubmissionID:    s.ID,
		Language:        string(s.Language),
		Status:          string(s.Status),
		Output:          s.Output,
		ErrorMessage:    s.ErrorMessage,
		ExecutionTimeMs: s.ExecutionTimeMs,
		MemoryUsedKB:    s.MemoryUsedKB,
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
	}
	if withSource {
		view.SourceCode = s.Source
	}
	return view
}

func toViews(items []*model.Submission) []SubmissionView {
	views := make([]SubmissionView, 0, len(items))
	for _, s := range items {
		views = append(views, toView(s, false))
	}
	return views
}

// StatsResponse is returned by GET /submissions/stats.
type StatsResponse struct {
	Since time.Time `json:"since"`
	Count int64     `json:"count"`
}
