// Package repository persists submission records.
package repository

import (
	"context"
	"errors"
	"time"

	"coderank/internal/submission/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("submission already exists")
)

// Page is one page of an owner's submissions, newest first. Page numbers are zero based.
type Page struct {
	Items []*model.Submission
	Total int64
	Page  int
	Size  int
}

// SubmissionStore is the durable home of submission records. Update is a full
// replace keyed by id; callers hand over records they own and get copies back.
type SubmissionStore interface {
	Create(ctx context.Context, submission *model.Submission) error
	Get(ctx context.Context, id string) (*model.Submission, error)
	Update(ctx context.Context, submission *model.Submission) error
	FindByOwner(ctx context.Context, ownerID string, page, size int) (Page, error)
	// FindByStatus returns up to limit records in status created before createdBefore, oldest first.
	FindByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]*model.Submission, error)
	CountByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int64, error)
}

func validateRecord(submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.OwnerID == "" {
		return errors.New("owner id is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}
	if !submission.Status.Valid() {
		return errors.New("status is invalid")
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 10
	}
	return page, size
}
