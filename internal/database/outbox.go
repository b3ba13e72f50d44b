package database

import (
	"context"
	"fmt"
	"time"

	"berserk/internal/models"
)

const jobColumns = `id, kind, booking_id, payload, status, retry_count, last_error, next_retry_at, created_at, updated_at, processed_at`

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	query := `INSERT INTO outbox (kind, booking_id, payload, status, retry_count, last_error, next_retry_at, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		job.Kind,
		job.BookingID,
		job.Payload,
		job.Status,
		job.RetryCount,
		job.LastError,
		utcPtr(job.NextRetryAt),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (db *DB) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+jobColumns+` FROM outbox WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %d not found", id)
	}
	return &jobs[0], nil
}

// GetDueJobs returns pending and retry jobs whose next attempt is due at now.
func (db *DB) GetDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + `
              FROM outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.JobStatusPending, models.JobStatusRetry, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due jobs: %w", err)
	}
	return scanJobs(rows)
}

// ClaimJob marks a due job as processing. Only one caller gets true per attempt.
func (db *DB) ClaimJob(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE outbox SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`
	res, err := db.ExecContext(ctx, query,
		models.JobStatusProcessing, time.Now().UTC(), id, models.JobStatusPending, models.JobStatusRetry)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return n == 1, nil
}

// ResetStaleJobs returns jobs left in processing by a crashed worker to pending.
func (db *DB) ResetStaleJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `UPDATE outbox SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`
	res, err := db.ExecContext(ctx, query,
		models.JobStatusPending, time.Now().UTC(), models.JobStatusProcessing, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()
	nextRetryAt = utcPtr(nextRetryAt)

	switch status {
	case models.JobStatusRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, now, id}
	case models.JobStatusCompleted, models.JobStatusFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ?, updated_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, now, now, id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, now, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedJobs(ctx context.Context) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM outbox WHERE status = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.JobStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed jobs: %w", err)
	}
	return scanJobs(rows)
}

// utcPtr keeps stored timestamps in one offset so they compare as text.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type jobRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

func scanJobs(rows jobRows) ([]models.Job, error) {
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		err := rows.Scan(
			&j.ID, &j.Kind, &j.BookingID, &j.Payload, &j.Status, &j.RetryCount, &j.LastError,
			&j.NextRetryAt, &j.CreatedAt, &j.UpdatedAt, &j.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
