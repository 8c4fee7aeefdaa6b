package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionType enumerates the proposed side effects the pipeline can suggest.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionCreateDeadline   ActionType = "create_deadline"
	ActionUpdateField      ActionType = "update_field"
	ActionSendNotification ActionType = "send_notification"
	ActionFlagRisk         ActionType = "flag_risk"
	ActionRequestReview    ActionType = "request_review"
	ActionAIRecommendation ActionType = "ai_recommendation"
)

// Executable reports whether accepting an action of this type triggers a
// side effect. Other types are informational until a handler exists.
func (t ActionType) Executable() bool {
	return t == ActionCreateTask || t == ActionCreateDeadline
}

// ActionStatus is the human-resolution state of an action, independent of
// whether its side effect has run.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionAccepted  ActionStatus = "accepted"
	ActionDismissed ActionStatus = "dismissed"
)

// ExecutionState records the side-effect outcome, layered on top of the
// human resolution.
type ExecutionState string

const (
	ExecNotExecuted ExecutionState = "not_executed"
	ExecExecuted    ExecutionState = "executed"
	ExecFailed      ExecutionState = "failed"
)

// Action priorities; 0 is most urgent.
const (
	PriorityUrgent = 0
	PriorityHigh   = 1
	PriorityMedium = 2
)

// Action is a proposed side effect requiring human acceptance before it
// executes. Payload is a tagged union keyed by ActionType.
type Action struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenantId"`
	MatterID        uuid.UUID       `json:"matterId"`
	RunID           uuid.UUID       `json:"runId"`
	ActionType      ActionType      `json:"actionType"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Priority        int             `json:"priority"`
	IsDeterministic bool            `json:"isDeterministic"`
	Status          ActionStatus    `json:"status"`
	ExecState       ExecutionState  `json:"executionState"`
	ExecError       string          `json:"executionError,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	ExecutedAt      *time.Time      `json:"executedAt,omitempty"`
}

// ExecutableNow reports whether the side effect may run: the action must be
// human-accepted and not already executed. This is the guard re-checked
// inside the execution transaction.
func (a *Action) ExecutableNow() bool {
	return a.Status == ActionAccepted && a.ExecState != ExecExecuted
}
