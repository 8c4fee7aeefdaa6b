package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/lexhaven/docintel/internal/store"
)

// PostgresQueue implements Queue over the shared jobs table. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-deliver.
type PostgresQueue struct {
	db store.DB
}

// NewPostgres creates a PostgresQueue on an existing database handle.
func NewPostgres(db store.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO jobs (id, kind, tenant_id, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.Kind, job.TenantID, job.Payload, string(JobQueued),
		job.Attempts, job.MaxAttempts, job.RunAt, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "queue: enqueue %s", job.Kind)
}

func (q *PostgresQueue) Dequeue(ctx context.Context, kinds []string) (*Job, error) {
	var j Job
	err := q.db.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, locked_at = now(), updated_at = now()
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = 'queued' AND run_at <= now() AND kind = ANY($1)
		   ORDER BY run_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, kind, tenant_id, payload, status, attempts, max_attempts, run_at, last_error, created_at, updated_at`,
		kinds,
	).Scan(&j.ID, &j.Kind, &j.TenantID, &j.Payload, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "queue: dequeue")
	}
	return &j, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE jobs SET status = 'completed', updated_at = now() WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: complete %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, job *Job, jobErr error, retryIn time.Duration) error {
	status := JobQueued
	runAt := time.Now().UTC().Add(retryIn)
	if job.Attempts >= job.MaxAttempts {
		status = JobDead
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE jobs SET status = $1, run_at = $2, last_error = $3, locked_at = NULL, updated_at = now()
		 WHERE id = $4`,
		string(status), runAt, jobErr.Error(), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: fail %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	job.Status = status
	return nil
}
