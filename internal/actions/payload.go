// Package actions holds the human-gated action proposals: payload shapes,
// the approval gate, and the idempotent executor.
package actions

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lexhaven/docintel/internal/model"
)

// TaskSpec is one task inside a create_task payload.
type TaskSpec struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

func (t TaskSpec) empty() bool {
	return t.Title == "" && t.Description == "" && t.Priority == nil && t.DueAt == nil
}

// CreateTaskPayload is the payload for create_task actions. The raw payload
// is either {tasks: [...]} or a bare single task shape.
type CreateTaskPayload struct {
	Tasks []TaskSpec `json:"tasks"`
}

// CreateDeadlinePayload is the payload for create_deadline actions.
type CreateDeadlinePayload struct {
	Title   string     `json:"title"`
	StartAt *time.Time `json:"startAt"`
	EndAt   *time.Time `json:"endAt,omitempty"`
	AllDay  bool       `json:"allDay,omitempty"`
}

// RecommendationPayload is the payload for ai_recommendation actions.
type RecommendationPayload struct {
	Summary     string   `json:"summary"`
	FindingKeys []string `json:"findingKeys,omitempty"`
}

// Payload is the decoded tagged union of an action's payload. Exactly one
// branch is non-nil for the executable types; unknown or informational
// types leave all branches nil.
type Payload struct {
	CreateTask     *CreateTaskPayload
	CreateDeadline *CreateDeadlinePayload
	Recommendation *RecommendationPayload
}

// DecodePayload decodes an action's raw payload according to its type.
// A missing payload decodes to the zero branch for its type.
func DecodePayload(actionType model.ActionType, raw json.RawMessage) (*Payload, error) {
	p := &Payload{}
	switch actionType {
	case model.ActionCreateTask:
		p.CreateTask = &CreateTaskPayload{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, p.CreateTask); err != nil {
				return nil, eris.Wrap(err, "actions: decode create_task payload")
			}
			if len(p.CreateTask.Tasks) == 0 {
				// The payload may also be a single task shape.
				var single TaskSpec
				if err := json.Unmarshal(raw, &single); err == nil && !single.empty() {
					p.CreateTask.Tasks = []TaskSpec{single}
				}
			}
		}
	case model.ActionCreateDeadline:
		p.CreateDeadline = &CreateDeadlinePayload{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, p.CreateDeadline); err != nil {
				return nil, eris.Wrap(err, "actions: decode create_deadline payload")
			}
		}
	case model.ActionAIRecommendation:
		p.Recommendation = &RecommendationPayload{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, p.Recommendation); err != nil {
				return nil, eris.Wrap(err, "actions: decode ai_recommendation payload")
			}
		}
	default:
		// Informational types carry free-form payloads the executor never
		// interprets.
	}
	return p, nil
}
