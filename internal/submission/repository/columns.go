package repository

import (
	"database/sql"
	"time"

	"coderank/internal/execution/language"
	"coderank/internal/submission/model"
)

const submissionColumns = "id, owner_id, language, source_code, status, output, error_message, execution_time_ms, memory_used_kb, created_at, completed_at"

// scanner matches db.Row, db.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner) (*model.Submission, error) {
	var (
		s           model.Submission
		lang        string
		status      string
		output      sql.NullString
		errMessage  sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&lang,
		&s.Source,
		&status,
		&output,
		&errMessage,
		&s.ExecutionTimeMs,
		&s.MemoryUsedKB,
		&s.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	s.Language = language.Language(lang)
	s.Status = model.Status(status)
	s.Output = output.String
	s.ErrorMessage = errMessage.String
	s.CreatedAt = s.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	return &s, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
