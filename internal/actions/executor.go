package actions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/store"
)

// Validation failures recorded on the action instead of failing the call.
const (
	errNoTasks        = "No tasks in actionPayload"
	errMissingDetails = "Missing title or startAt"
)

// Executor applies accepted actions' side effects exactly once.
type Executor struct {
	store store.Store
}

// NewExecutor creates an Executor over the store.
func NewExecutor(st store.Store) *Executor {
	return &Executor{store: st}
}

// Result reports one execution attempt.
type Result struct {
	Executed bool   `json:"executed"`
	Error    string `json:"error,omitempty"`
}

// Execute runs an accepted action's side effect. The whole attempt happens
// inside one transaction: the action is re-read and re-checked there, so
// two concurrent accepts produce exactly one execution. Invalid payloads
// leave the action unexecuted with the validation message recorded;
// non-executable types resolve without side effects.
func (e *Executor) Execute(ctx context.Context, tenantID, actionID uuid.UUID) (*Result, error) {
	res := &Result{}

	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		// The locked read serializes concurrent attempts: the loser waits
		// here and then sees the winner's executed state.
		action, err := tx.GetActionForUpdate(ctx, tenantID, actionID)
		if err != nil {
			return eris.Wrap(err, "actions: load action")
		}
		if !action.ExecutableNow() {
			zap.L().Info("actions: skipping execution",
				zap.String("action_id", actionID.String()),
				zap.String("status", string(action.Status)),
				zap.String("exec_state", string(action.ExecState)),
			)
			return nil
		}
		if !action.ActionType.Executable() {
			return nil
		}

		payload, err := DecodePayload(action.ActionType, action.Payload)
		if err != nil {
			now := time.Now().UTC()
			res.Error = "Invalid action payload"
			return tx.MarkActionExecution(ctx, tenantID, actionID, model.ExecFailed, res.Error, &now)
		}

		var validationErr string
		switch action.ActionType {
		case model.ActionCreateTask:
			validationErr, err = e.createTasks(ctx, tx, action, payload.CreateTask)
		case model.ActionCreateDeadline:
			validationErr, err = e.createDeadline(ctx, tx, action, payload.CreateDeadline)
		}
		if err != nil {
			return err
		}
		if validationErr != "" {
			// Validation failures keep the action unexecuted so a fixed
			// payload could still run.
			res.Error = validationErr
			return tx.MarkActionExecution(ctx, tenantID, actionID, model.ExecNotExecuted, validationErr, nil)
		}

		now := time.Now().UTC()
		if err := tx.MarkActionExecution(ctx, tenantID, actionID, model.ExecExecuted, "", &now); err != nil {
			return err
		}

		event := &model.TimelineEvent{
			ID:        uuid.New(),
			TenantID:  tenantID,
			MatterID:  action.MatterID,
			EventType: "action_executed",
			Summary:   action.Title,
			RefID:     &action.ID,
			CreatedAt: now,
		}
		if err := tx.InsertTimelineEvent(ctx, event); err != nil {
			return eris.Wrap(err, "actions: timeline event")
		}

		res.Executed = true
		return nil
	})
	if err != nil {
		// Runtime failures are recorded best effort outside the rolled-back
		// transaction so the action shows as failed, not stuck.
		now := time.Now().UTC()
		if markErr := e.store.MarkActionExecution(ctx, tenantID, actionID, model.ExecFailed, err.Error(), &now); markErr != nil {
			zap.L().Error("actions: record failure failed",
				zap.String("action_id", actionID.String()),
				zap.Error(markErr),
			)
		}
		return nil, err
	}
	return res, nil
}

// createTasks inserts one task per payload entry. An empty task list is a
// validation failure, not an execution error.
func (e *Executor) createTasks(ctx context.Context, tx store.Store, action *model.Action, payload *CreateTaskPayload) (string, error) {
	if payload == nil || len(payload.Tasks) == 0 {
		return errNoTasks, nil
	}
	now := time.Now().UTC()
	for _, spec := range payload.Tasks {
		priority := action.Priority
		if spec.Priority != nil {
			priority = *spec.Priority
		}
		task := &model.Task{
			ID:          uuid.New(),
			TenantID:    action.TenantID,
			MatterID:    action.MatterID,
			Title:       spec.Title,
			Description: spec.Description,
			Priority:    priority,
			DueAt:       spec.DueAt,
			CreatedAt:   now,
		}
		if task.Title == "" {
			task.Title = action.Title
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return "", eris.Wrap(err, "actions: insert task")
		}
	}
	return "", nil
}

func (e *Executor) createDeadline(ctx context.Context, tx store.Store, action *model.Action, payload *CreateDeadlinePayload) (string, error) {
	if payload == nil || payload.Title == "" || payload.StartAt == nil {
		return errMissingDetails, nil
	}
	event := &model.CalendarEvent{
		ID:        uuid.New(),
		TenantID:  action.TenantID,
		MatterID:  action.MatterID,
		Title:     payload.Title,
		StartAt:   *payload.StartAt,
		EndAt:     payload.EndAt,
		AllDay:    payload.AllDay,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertCalendarEvent(ctx, event); err != nil {
		return "", eris.Wrap(err, "actions: insert calendar event")
	}
	return "", nil
}
