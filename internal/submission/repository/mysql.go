package repository

import (
	"context"
	"fmt"
	"time"

	"coderank/internal/common/db"
	"coderank/internal/submission/model"
)

// MySQLSubmissionStore implements SubmissionStore on MySQL.
type MySQLSubmissionStore struct {
	db db.Database
}

// NewMySQLSubmissionStore creates a MySQL backed store.
func NewMySQLSubmissionStore(database db.Database) *MySQLSubmissionStore {
	return &MySQLSubmissionStore{db: database}
}

func (r *MySQLSubmissionStore) Create(ctx context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	query := `
		INSERT INTO submissions
		(` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		submission.ID,
		submission.OwnerID,
		string(submission.Language),
		submission.Source,
		string(submission.Status),
		submission.Output,
		submission.ErrorMessage,
		submission.ExecutionTimeMs,
		submission.MemoryUsedKB,
		submission.CreatedAt.UTC(),
		nullableTime(submission.CompletedAt),
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrSubmissionExists
		}
		return err
	}
	return nil
}

func (r *MySQLSubmissionStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *MySQLSubmissionStore) Update(ctx context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	query := `
		UPDATE submissions SET
			owner_id = ?, language = ?, source_code = ?, status = ?, output = ?, error_message = ?,
			execution_time_ms = ?, memory_used_kb = ?, created_at = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := r.db.Exec(ctx, query,
		submission.OwnerID,
		string(submission.Language),
		submission.Source,
		string(submission.Status),
		submission.Output,
		submission.ErrorMessage,
		submission.ExecutionTimeMs,
		submission.MemoryUsedKB,
		submission.CreatedAt.UTC(),
		nullableTime(submission.CompletedAt),
		submission.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// MySQL reports 0 for an unchanged row, so confirm the row exists.
		var one int
		if err := r.db.QueryRow(ctx, "SELECT 1 FROM submissions WHERE id = ? LIMIT 1", submission.ID).Scan(&one); err != nil {
			if db.IsNoRows(err) {
				return ErrSubmissionNotFound
			}
			return err
		}
	}
	return nil
}

func (r *MySQLSubmissionStore) FindByOwner(ctx context.Context, ownerID string, page, size int) (Page, error) {
	page, size = normalizePage(page, size)

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE owner_id = ?", ownerID).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count submissions failed: %w", err)
	}

	query := "SELECT " + submissionColumns + " FROM submissions WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	items, err := r.queryList(ctx, query, ownerID, size, page*size)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: page, Size: size}, nil
}

func (r *MySQLSubmissionStore) FindByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE status = ? AND created_at < ? ORDER BY created_at ASC LIMIT ?"
	return r.queryList(ctx, query, string(status), createdBefore.UTC(), limit)
}

func (r *MySQLSubmissionStore) CountByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE owner_id = ? AND created_at > ?", ownerID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MySQLSubmissionStore) queryList(ctx context.Context, query string, args ...interface{}) ([]*model.Submission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*model.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
