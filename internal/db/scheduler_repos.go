package db

import (
	"context"
	"time"

	"rewardbridge/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides cross-process locking via the job_locks table,
// so the API server and the job-runner never execute the same job at once.
// Acquisition is a single INSERT ... ON CONFLICT DO UPDATE that only
// succeeds when no row exists or the existing row has expired.
type JobLockRepository struct {
	db  DBTX
	now func() time.Time
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, now: time.Now}
}

// Acquire attempts to take lockID for workerID until ttl elapses. Returns
// true if acquired, false if another worker holds an unexpired lock.
//
// locked_at and expires_at are computed in Go rather than with interval
// arithmetic in SQL.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// 1 row for a fresh insert or a reclaimed expired lock, 0 when held.
	return tag.RowsAffected() > 0, nil
}

// Release drops lockID if workerID still owns it. Releasing a lock that has
// been reclaimed by someone else is a no-op.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// ============================================================
// JobHistoryRepository
// ============================================================

// JobRecord is one row of job_history.
type JobRecord struct {
	ID         int64      `json:"id"`
	JobType    string     `json:"job_type"`
	WorkerID   string     `json:"worker_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Items      int        `json:"items"`
	Summary    *string    `json:"summary,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// JobHistoryRepository records scheduled and manual job executions for
// operational visibility.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a 'running' row and returns its id for Finish.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string, workerID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, worker_id, started_at, status)
		 VALUES ($1, $2, NOW(), 'running')
		 RETURNING id`,
		jobType,
		workerID,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish records the outcome of a job. status is 'success', 'failed' or
// 'skipped'. If jobErr is non-nil, its message is stored in the error
// column.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, summary string, jobErr error) error {
	var errMsg, sum *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}
	if summary != "" {
		sum = &summary
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, summary = $4, error = $5
		 WHERE id = $1`,
		id,
		status,
		items,
		sum,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}

// Recent returns the latest executions of jobType, newest first.
func (r *JobHistoryRepository) Recent(ctx context.Context, jobType string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, job_type, worker_id, started_at, finished_at, status, items_count, summary, error
		 FROM job_history
		 WHERE job_type = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		jobType,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query job history", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.JobType,
			&rec.WorkerID,
			&rec.StartedAt,
			&rec.FinishedAt,
			&rec.Status,
			&rec.Items,
			&rec.Summary,
			&rec.Error,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job history row", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate job history", err)
	}
	return out, nil
}
