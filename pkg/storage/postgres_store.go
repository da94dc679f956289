package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	job_id              TEXT PRIMARY KEY,
	video_url           TEXT NOT NULL,
	video_id            TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	prompt_id           TEXT NOT NULL DEFAULT '',
	max_tokens          INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	progress            INTEGER NOT NULL DEFAULT 0,
	title               TEXT NOT NULL DEFAULT '',
	filename            TEXT NOT NULL DEFAULT '',
	markdown            TEXT NOT NULL DEFAULT '',
	transcript_status   TEXT NOT NULL DEFAULT '',
	transcript_source   TEXT NOT NULL DEFAULT '',
	caption_probe_error TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS analysis_jobs_created_at_idx ON analysis_jobs (created_at DESC);
`

const selectColumns = `job_id, video_url, video_id, model, prompt_id, max_tokens, status, progress,
	title, filename, markdown, transcript_status, transcript_source, caption_probe_error,
	error, created_at, completed_at`

// listLimit bounds List; older jobs stay in the table.
const listLimit = 100

// PostgresJobStore is the durable job history.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore connects and makes sure the table exists.
func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresJobStore{db: db}, nil
}

func (s *PostgresJobStore) Save(ctx context.Context, job *models.AnalysisJob) error {
	const query = `
	INSERT INTO analysis_jobs (` + selectColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (job_id) DO UPDATE SET
		video_id = EXCLUDED.video_id,
		status = EXCLUDED.status,
		progress = EXCLUDED.progress,
		title = EXCLUDED.title,
		filename = EXCLUDED.filename,
		markdown = EXCLUDED.markdown,
		transcript_status = EXCLUDED.transcript_status,
		transcript_source = EXCLUDED.transcript_source,
		caption_probe_error = EXCLUDED.caption_probe_error,
		error = EXCLUDED.error,
		completed_at = EXCLUDED.completed_at`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.VideoURL,
		job.VideoID,
		job.Model,
		job.PromptID,
		job.MaxTokens,
		string(job.Status),
		job.Progress,
		job.Title,
		job.Filename,
		job.Markdown,
		string(job.TranscriptStatus),
		job.TranscriptSource,
		job.CaptionProbeError,
		job.Error,
		job.CreatedAt,
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM analysis_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *PostgresJobStore) Update(ctx context.Context, jobID string, fn func(*models.AnalysisJob)) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	fn(job)
	return s.Save(ctx, job)
}

func (s *PostgresJobStore) List(ctx context.Context) ([]*models.AnalysisJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM analysis_jobs ORDER BY created_at DESC LIMIT $1`, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.AnalysisJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresJobStore) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.AnalysisJob, error) {
	var (
		job              models.AnalysisJob
		status, tsStatus string
		completedAt      sql.NullTime
	)
	err := row.Scan(
		&job.JobID,
		&job.VideoURL,
		&job.VideoID,
		&job.Model,
		&job.PromptID,
		&job.MaxTokens,
		&status,
		&job.Progress,
		&job.Title,
		&job.Filename,
		&job.Markdown,
		&tsStatus,
		&job.TranscriptSource,
		&job.CaptionProbeError,
		&job.Error,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.TranscriptStatus = models.TranscriptStatus(tsStatus)
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	return &job, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
