package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"coderank/internal/submission/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PGQuerier is the subset of *pgxpool.Pool used by the store.
type PGQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig configures the PostgreSQL pool.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	ApplicationName string        `yaml:"applicationName"`
}

// NewPostgresPool opens and pings a pgx pool.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN cannot be empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
		return dialer.DialContext(ctx, network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// PostgresSubmissionStore implements SubmissionStore on PostgreSQL.
type PostgresSubmissionStore struct {
	pool PGQuerier
}

// NewPostgresSubmissionStore creates a PostgreSQL backed store.
func NewPostgresSubmissionStore(pool PGQuerier) *PostgresSubmissionStore {
	return &PostgresSubmissionStore{pool: pool}
}

func (r *PostgresSubmissionStore) Create(ctx context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	query := `
		INSERT INTO submissions
		(` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
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
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrSubmissionExists
		}
		return err
	}
	return nil
}

func (r *PostgresSubmissionStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = $1"
	s, err := scanSubmission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresSubmissionStore) Update(ctx context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	query := `
		UPDATE submissions SET
			owner_id = $1, language = $2, source_code = $3, status = $4, output = $5, error_message = $6,
			execution_time_ms = $7, memory_used_kb = $8, created_at = $9, completed_at = $10
		WHERE id = $11
	`
	tag, err := r.pool.Exec(ctx, query,
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
	if tag.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (r *PostgresSubmissionStore) FindByOwner(ctx context.Context, ownerID string, page, size int) (Page, error) {
	page, size = normalizePage(page, size)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE owner_id = $1", ownerID).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count submissions failed: %w", err)
	}

	query := "SELECT " + submissionColumns + " FROM submissions WHERE owner_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3"
	items, err := r.queryList(ctx, query, ownerID, size, page*size)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: page, Size: size}, nil
}

func (r *PostgresSubmissionStore) FindByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3"
	return r.queryList(ctx, query, string(status), createdBefore.UTC(), limit)
}

func (r *PostgresSubmissionStore) CountByOwnerSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE owner_id = $1 AND created_at > $2", ownerID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresSubmissionStore) queryList(ctx context.Context, query string, args ...any) ([]*model.Submission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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
