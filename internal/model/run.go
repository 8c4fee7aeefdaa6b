package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether a run in this status can never change again.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Stage identifies one step of the document pipeline.
type Stage string

const (
	StageIntake    Stage = "intake"
	StageOCR       Stage = "ocr"
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract"
	StageReconcile Stage = "reconcile"
	StageActions   Stage = "actions"
)

// StageStatus is the state of a single stage within a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// PipelineRun is one document-processing attempt. Stage statuses only ever
// advance; a failed run is terminal. RawError holds operator diagnostics and
// is never surfaced to end users.
type PipelineRun struct {
	ID            uuid.UUID             `json:"id"`
	TenantID      uuid.UUID             `json:"tenantId"`
	MatterID      uuid.UUID             `json:"matterId"`
	DocumentID    uuid.UUID             `json:"documentId"`
	Status        RunStatus             `json:"status"`
	CurrentStage  Stage                 `json:"currentStage,omitempty"`
	StageStatuses map[Stage]StageStatus `json:"stageStatuses"`
	DocumentType  string                `json:"documentType,omitempty"`
	FindingsCount int                   `json:"findingsCount"`
	ActionsCount  int                   `json:"actionsCount"`
	TriggeredBy   *uuid.UUID            `json:"triggeredBy,omitempty"`
	FailedStage   Stage                 `json:"failedStage,omitempty"`
	FailureReason string                `json:"failureReason,omitempty"`
	RawError      string                `json:"-"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	CompletedAt   *time.Time            `json:"completedAt,omitempty"`
}

// Document is the pipeline's view of an uploaded file. Storage and retrieval
// mechanics live elsewhere; the pipeline only needs identity and text.
type Document struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenantId"`
	MatterID      uuid.UUID `json:"matterId"`
	FileName      string    `json:"fileName"`
	MimeType      string    `json:"mimeType"`
	ExtractedText string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Matter is the pipeline's view of a legal matter.
type Matter struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenantId"`
	PracticeArea string    `json:"practiceArea"`
	Title        string    `json:"title"`
	RiskScore    int       `json:"riskScore"`
}

// TimelineEvent is one audit-trail entry on a matter.
type TimelineEvent struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenantId"`
	MatterID  uuid.UUID  `json:"matterId"`
	EventType string     `json:"eventType"`
	Summary   string     `json:"summary"`
	RefID     *uuid.UUID `json:"refId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Task is a side effect produced by an executed create_task action.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenantId"`
	MatterID    uuid.UUID  `json:"matterId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CalendarEvent is a side effect produced by an executed create_deadline action.
type CalendarEvent struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenantId"`
	MatterID  uuid.UUID  `json:"matterId"`
	Title     string     `json:"title"`
	StartAt   time.Time  `json:"startAt"`
	EndAt     *time.Time `json:"endAt,omitempty"`
	AllDay    bool       `json:"allDay"`
	CreatedAt time.Time  `json:"createdAt"`
}
