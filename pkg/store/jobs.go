package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
)

type JobStatus string

const (
	STATUS_PENDING    JobStatus = "pending"
	STATUS_PROCESSING JobStatus = "processing"
	STATUS_COMPLETED  JobStatus = "completed"
	STATUS_FAILED     JobStatus = "failed"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobTransition = errors.New("job is not in a state that allows this transition")
)

type Job struct {
	ID                string          `json:"job_id"`
	Status            JobStatus       `json:"status"`
	Mode              string          `json:"mode"`
	InputPath         string          `json:"input_path"`
	OutputDir         string          `json:"output_dir"`
	TotalRequests     int             `json:"total_requests"`
	ProcessedRequests int             `json:"processed_requests"`
	Summary           json.RawMessage `json:"summary,omitempty"`
	Outputs           json.RawMessage `json:"outputs,omitempty"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// CreateJob inserts a pending job with a fresh id.
func (s *Store) CreateJob(ctx context.Context, mode, inputPath, outputDir string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Status:    STATUS_PENDING,
		Mode:      mode,
		InputPath: inputPath,
		OutputDir: outputDir,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, mode, input_path, output_dir, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Mode, job.InputPath, job.OutputDir, job.CreatedAt)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrInternalServerError, "insert job")
	}
	return job, nil
}

func (s *Store) MarkProcessing(ctx context.Context, id string, totalRequests int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, total_requests = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(STATUS_PROCESSING), totalRequests, time.Now().UTC(), id, string(STATUS_PENDING))
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "update job %s", id)
	}
	return s.checkUpdated(ctx, res, id)
}

// MarkCompleted stores the summary and output locations, both marshalled to JSON.
func (s *Store) MarkCompleted(ctx context.Context, id string, processedRequests int, summary, outputs any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "marshal summary")
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "marshal outputs")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, processed_requests = ?, summary = ?, outputs = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(STATUS_COMPLETED), processedRequests, string(summaryJSON), string(outputsJSON), time.Now().UTC(),
		id, string(STATUS_PROCESSING))
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "update job %s", id)
	}
	return s.checkUpdated(ctx, res, id)
}

// MarkFailed works from pending or processing.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(STATUS_FAILED), msg, time.Now().UTC(), id, string(STATUS_PENDING), string(STATUS_PROCESSING))
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "update job %s", id)
	}
	return s.checkUpdated(ctx, res, id)
}

// checkUpdated tells a missing job apart from one in the wrong state. Callers hold s.mu.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return util.WrapErrorf(err, util.ErrInternalServerError, "rows affected")
	}
	if n > 0 {
		return nil
	}
	if _, err := s.getJob(ctx, id); err != nil {
		return err
	}
	return util.WrapErrorf(ErrJobTransition, util.ErrConflict, "job %s", id)
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJob(ctx, id)
}

func (s *Store) getJob(ctx context.Context, id string) (*Job, error) {
	var (
		job                  Job
		summary, outputs     sql.NullString
		errMsg               sql.NullString
		startedAt, completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, mode, input_path, output_dir, total_requests, processed_requests,
		summary, outputs, error, created_at, started_at, completed_at FROM jobs WHERE id = ?`, id).Scan(
		&job.ID, &job.Status, &job.Mode, &job.InputPath, &job.OutputDir, &job.TotalRequests,
		&job.ProcessedRequests, &summary, &outputs, &errMsg, &job.CreatedAt, &startedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, util.WrapErrorf(ErrJobNotFound, util.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrInternalServerError, "get job %s", id)
	}

	if summary.Valid {
		job.Summary = json.RawMessage(summary.String)
	}
	if outputs.Valid {
		job.Outputs = json.RawMessage(outputs.String)
	}
	job.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		s.mu.RUnlock()
		return nil, util.WrapErrorf(err, util.ErrInternalServerError, "list jobs")
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, util.WrapErrorf(err, util.ErrInternalServerError, "scan job id")
		}
		ids = append(ids, id)
	}
	rows.Close()

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.getJob(ctx, id)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()
	return jobs, nil
}
