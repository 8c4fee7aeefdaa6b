// Package queue provides the durable background job queue backing
// asynchronous document processing.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job kinds routed by the worker.
const (
	KindProcessDocument = "document:extract"
	KindRecomputeRisk   = "matter:recompute_risk"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobDead      JobStatus = "dead"
)

// DefaultMaxAttempts bounds redelivery of a failing job before it is
// dead-lettered.
const DefaultMaxAttempts = 3

// Job is one unit of background work.
type Job struct {
	ID          uuid.UUID
	Kind        string
	TenantID    uuid.UUID
	Payload     json.RawMessage
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProcessDocumentPayload is the payload for KindProcessDocument jobs.
// Options is carried opaquely for the handler to interpret.
type ProcessDocumentPayload struct {
	DocumentID  uuid.UUID       `json:"documentId"`
	RunID       uuid.UUID       `json:"runId"`
	TriggeredBy *uuid.UUID      `json:"triggeredBy,omitempty"`
	Options     json.RawMessage `json:"options,omitempty"`
}

// RecomputeRiskPayload is the payload for KindRecomputeRisk jobs.
type RecomputeRiskPayload struct {
	MatterID uuid.UUID `json:"matterId"`
}

// Queue is the durable job queue. Dequeue claims a job exclusively; the
// claim survives worker crashes because unfinished jobs are requeued by
// their next retry deadline.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue claims the next ready job, or returns nil when the queue is
	// empty. The claimed job's attempt counter is already incremented.
	Dequeue(ctx context.Context, kinds []string) (*Job, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	// Fail records a handler failure. The job is requeued after retryIn
	// unless its attempts are exhausted, in which case it is dead-lettered.
	Fail(ctx context.Context, job *Job, jobErr error, retryIn time.Duration) error
}

// NewJob builds a queued job with defaults applied.
func NewJob(kind string, tenantID uuid.UUID, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		TenantID:    tenantID,
		Payload:     data,
		Status:      JobQueued,
		MaxAttempts: DefaultMaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
