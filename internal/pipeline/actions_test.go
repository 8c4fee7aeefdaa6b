package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/docintel/internal/actions"
	"github.com/lexhaven/docintel/internal/model"
)

func TestMatchTrigger_PicksMostSevere(t *testing.T) {
	trigger := model.ActionTrigger{MinImpact: model.ImpactMedium}
	fs := []model.Finding{
		{FieldKey: "a", Impact: model.ImpactMedium, Confidence: 0.9},
		{FieldKey: "b", Impact: model.ImpactCritical, Confidence: 0.6},
		{FieldKey: "c", Impact: model.ImpactHigh, Confidence: 0.95},
	}
	got := matchTrigger(trigger, fs)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.FieldKey)
}

func TestMatchTrigger_ConfidenceBreaksTies(t *testing.T) {
	trigger := model.ActionTrigger{MinImpact: model.ImpactHigh}
	fs := []model.Finding{
		{FieldKey: "a", Impact: model.ImpactHigh, Confidence: 0.7},
		{FieldKey: "b", Impact: model.ImpactHigh, Confidence: 0.9},
	}
	got := matchTrigger(trigger, fs)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.FieldKey)
}

func TestMatchTrigger_FieldKeyFilter(t *testing.T) {
	trigger := model.ActionTrigger{FieldKey: "incident_date", MinImpact: model.ImpactLow}
	fs := []model.Finding{
		{FieldKey: "claimant_name", Impact: model.ImpactCritical, Confidence: 0.9},
		{FieldKey: "incident_date", Impact: model.ImpactMedium, Confidence: 0.8},
	}
	got := matchTrigger(trigger, fs)
	require.NotNil(t, got)
	assert.Equal(t, "incident_date", got.FieldKey)
}

func TestMatchTrigger_NoMatchBelowMinImpact(t *testing.T) {
	trigger := model.ActionTrigger{MinImpact: model.ImpactCritical}
	fs := []model.Finding{
		{FieldKey: "a", Impact: model.ImpactHigh, Confidence: 0.99},
	}
	assert.Nil(t, matchTrigger(trigger, fs))
}

func TestBuildTriggerAction_TaskPayloadAndTitleSubstitution(t *testing.T) {
	run := &model.PipelineRun{ID: uuid.New(), TenantID: uuid.New(), MatterID: uuid.New()}
	trigger := model.ActionTrigger{
		ActionType: model.ActionCreateTask,
		Title:      "Verify {{label}}: {{value}}",
		Priority:   2,
		MinImpact:  model.ImpactMedium,
	}
	f := &model.Finding{Label: "Claimant Name", Value: "John Smith", Impact: model.ImpactHigh}

	action, err := buildTriggerAction(trigger, f, run, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, "Verify Claimant Name: John Smith", action.Title)
	assert.Equal(t, model.ActionPending, action.Status)
	assert.Equal(t, model.ExecNotExecuted, action.ExecState)
	assert.True(t, action.IsDeterministic)

	var p actions.CreateTaskPayload
	require.NoError(t, json.Unmarshal(action.Payload, &p))
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, "Verify Claimant Name: John Smith", p.Tasks[0].Title)
}

func TestBuildTriggerAction_DeadlineParsesDate(t *testing.T) {
	run := &model.PipelineRun{ID: uuid.New(), TenantID: uuid.New(), MatterID: uuid.New()}
	trigger := model.ActionTrigger{
		ActionType: model.ActionCreateDeadline,
		Title:      "Calendar deadline",
	}
	f := &model.Finding{Label: "Filing Deadline", Value: "January 5, 2026", Impact: model.ImpactCritical}

	action, err := buildTriggerAction(trigger, f, run, time.Now().UTC())
	require.NoError(t, err)

	var p actions.CreateDeadlinePayload
	require.NoError(t, json.Unmarshal(action.Payload, &p))
	require.NotNil(t, p.StartAt)
	assert.Equal(t, 2026, p.StartAt.Year())
	assert.Equal(t, time.January, p.StartAt.Month())
	assert.True(t, p.AllDay)
}

func TestBuildTriggerAction_DeadlineUnparseableDateLeavesStartAtNil(t *testing.T) {
	run := &model.PipelineRun{ID: uuid.New()}
	trigger := model.ActionTrigger{ActionType: model.ActionCreateDeadline, Title: "Deadline"}
	f := &model.Finding{Label: "Deadline", Value: "sometime next spring"}

	action, err := buildTriggerAction(trigger, f, run, time.Now().UTC())
	require.NoError(t, err)

	var p actions.CreateDeadlinePayload
	require.NoError(t, json.Unmarshal(action.Payload, &p))
	assert.Nil(t, p.StartAt)
}

func TestBuildRecommendation_SummarizesHighFindings(t *testing.T) {
	run := &model.PipelineRun{ID: uuid.New(), TenantID: uuid.New(), MatterID: uuid.New()}
	fs := []model.Finding{
		{CategoryKey: "dates", FieldKey: "statute_of_limitations", Label: "Statute of Limitations", Value: "2026-03-01", Impact: model.ImpactCritical},
		{CategoryKey: "parties", FieldKey: "claimant_name", Label: "Claimant Name", Value: "John Smith", Impact: model.ImpactHigh},
		{CategoryKey: "financial", FieldKey: "policy_number", Label: "Policy Number", Value: "PN-1", Impact: model.ImpactMedium},
	}

	rec := buildRecommendation(fs, run, time.Now().UTC())
	require.NotNil(t, rec)
	assert.Equal(t, model.ActionAIRecommendation, rec.ActionType)
	assert.Equal(t, "Review 2 significant finding(s)", rec.Title)
	assert.False(t, rec.IsDeterministic)

	var p actions.RecommendationPayload
	require.NoError(t, json.Unmarshal(rec.Payload, &p))
	assert.Equal(t, []string{"dates:statute_of_limitations", "parties:claimant_name"}, p.FindingKeys)
	assert.Contains(t, p.Summary, "Statute of Limitations")
	assert.NotContains(t, p.Summary, "Policy Number")
}

func TestBuildRecommendation_NilWithoutHighFindings(t *testing.T) {
	run := &model.PipelineRun{ID: uuid.New()}
	fs := []model.Finding{
		{FieldKey: "policy_number", Impact: model.ImpactMedium},
		{FieldKey: "adjuster_name", Impact: model.ImpactLow},
	}
	assert.Nil(t, buildRecommendation(fs, run, time.Now().UTC()))
}

func TestParseDate_Layouts(t *testing.T) {
	for _, s := range []string{
		"2026-03-15",
		"March 15, 2026",
		"Mar 15, 2026",
		"03/15/2026",
		"3/15/2026",
		"2026-03-15T10:00:00Z",
	} {
		got, ok := parseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, 2026, got.Year(), s)
		assert.Equal(t, time.March, got.Month(), s)
		assert.Equal(t, 15, got.Day(), s)
	}

	_, ok := parseDate("the ides of March")
	assert.False(t, ok)
}
