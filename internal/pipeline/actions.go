package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/lexhaven/docintel/internal/actions"
	"github.com/lexhaven/docintel/internal/model"
)

// proposeActions turns this run's findings into pending action proposals:
// the pack's deterministic triggers first, then one AI recommendation
// summarizing the critical and high findings. Nothing executes here.
func (o *Orchestrator) proposeActions(ctx context.Context, st *runState) (bool, error) {
	if st.snap == nil {
		return true, nil
	}
	if len(st.findings) == 0 {
		st.run.ActionsCount = 0
		return false, nil
	}

	now := time.Now().UTC()
	var proposals []model.Action

	for _, trigger := range st.snap.Pack.Triggers {
		finding := matchTrigger(trigger, st.findings)
		if finding == nil {
			continue
		}
		action, err := buildTriggerAction(trigger, finding, st.run, now)
		if err != nil {
			return false, err
		}
		proposals = append(proposals, *action)
	}

	if rec := buildRecommendation(st.findings, st.run, now); rec != nil {
		proposals = append(proposals, *rec)
	}

	if len(proposals) > 0 {
		if err := o.store.InsertActions(ctx, proposals); err != nil {
			return false, eris.Wrap(err, "actions: persist proposals")
		}
	}
	st.actions = proposals
	st.run.ActionsCount = len(proposals)
	return false, nil
}

// matchTrigger returns the most severe finding the trigger fires on, or nil.
func matchTrigger(trigger model.ActionTrigger, fs []model.Finding) *model.Finding {
	var best *model.Finding
	for i := range fs {
		f := &fs[i]
		if trigger.FieldKey != "" && trigger.FieldKey != f.FieldKey {
			continue
		}
		if !f.Impact.AtLeast(trigger.MinImpact) {
			continue
		}
		if best == nil || f.Impact.Rank() > best.Impact.Rank() ||
			(f.Impact.Rank() == best.Impact.Rank() && f.Confidence > best.Confidence) {
			best = f
		}
	}
	return best
}

// buildTriggerAction materializes a fired trigger into a pending proposal.
// {{value}} and {{label}} in the trigger title substitute from the finding.
func buildTriggerAction(trigger model.ActionTrigger, f *model.Finding, run *model.PipelineRun, now time.Time) (*model.Action, error) {
	title := trigger.Title
	if title == "" {
		title = f.Label
	}
	title = strings.ReplaceAll(title, "{{value}}", f.Value)
	title = strings.ReplaceAll(title, "{{label}}", f.Label)

	action := &model.Action{
		ID:              uuid.New(),
		TenantID:        run.TenantID,
		MatterID:        run.MatterID,
		RunID:           run.ID,
		ActionType:      trigger.ActionType,
		Title:           title,
		Description:     fmt.Sprintf("%s: %s", f.Label, f.Value),
		Priority:        trigger.Priority,
		IsDeterministic: true,
		Status:          model.ActionPending,
		ExecState:       model.ExecNotExecuted,
		CreatedAt:       now,
	}

	var payload any
	switch trigger.ActionType {
	case model.ActionCreateTask:
		payload = actions.CreateTaskPayload{Tasks: []actions.TaskSpec{{
			Title:       title,
			Description: action.Description,
			Priority:    &trigger.Priority,
		}}}
	case model.ActionCreateDeadline:
		p := actions.CreateDeadlinePayload{Title: title, AllDay: true}
		if t, ok := parseDate(f.Value); ok {
			p.StartAt = &t
		}
		payload = p
	default:
		return action, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "actions: marshal trigger payload")
	}
	action.Payload = data
	return action, nil
}

// buildRecommendation assembles the single ai_recommendation proposal
// covering the run's critical and high findings. Returns nil when the run
// produced none.
func buildRecommendation(fs []model.Finding, run *model.PipelineRun, now time.Time) *model.Action {
	var keys []string
	var lines []string
	for _, f := range fs {
		if !f.Impact.AtLeast(model.ImpactHigh) {
			continue
		}
		keys = append(keys, f.CategoryKey+":"+f.FieldKey)
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", f.Label, f.Value, f.Impact))
	}
	if len(keys) == 0 {
		return nil
	}

	summary := fmt.Sprintf("Review %d significant finding(s) from this document:\n- %s",
		len(keys), strings.Join(lines, "\n- "))
	data, err := json.Marshal(actions.RecommendationPayload{Summary: summary, FindingKeys: keys})
	if err != nil {
		return nil
	}

	return &model.Action{
		ID:              uuid.New(),
		TenantID:        run.TenantID,
		MatterID:        run.MatterID,
		RunID:           run.ID,
		ActionType:      model.ActionAIRecommendation,
		Title:           fmt.Sprintf("Review %d significant finding(s)", len(keys)),
		Description:     summary,
		Priority:        model.PriorityHigh,
		IsDeterministic: false,
		Status:          model.ActionPending,
		ExecState:       model.ExecNotExecuted,
		Payload:         data,
		CreatedAt:       now,
	}
}

// dateLayouts are the formats deadline-bearing values commonly arrive in.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"1/2/2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
