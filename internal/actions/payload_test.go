package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/docintel/internal/model"
)

func TestDecodePayload_CreateTask(t *testing.T) {
	raw := []byte(`{"tasks":[{"title":"Call adjuster","priority":1}]}`)
	p, err := DecodePayload(model.ActionCreateTask, raw)
	require.NoError(t, err)

	require.NotNil(t, p.CreateTask)
	assert.Nil(t, p.CreateDeadline)
	assert.Nil(t, p.Recommendation)
	require.Len(t, p.CreateTask.Tasks, 1)
	assert.Equal(t, "Call adjuster", p.CreateTask.Tasks[0].Title)
	require.NotNil(t, p.CreateTask.Tasks[0].Priority)
	assert.Equal(t, 1, *p.CreateTask.Tasks[0].Priority)
}

func TestDecodePayload_CreateTaskSingleShape(t *testing.T) {
	raw := []byte(`{"title":"Call client","description":"follow up"}`)
	p, err := DecodePayload(model.ActionCreateTask, raw)
	require.NoError(t, err)

	require.NotNil(t, p.CreateTask)
	require.Len(t, p.CreateTask.Tasks, 1)
	assert.Equal(t, "Call client", p.CreateTask.Tasks[0].Title)
	assert.Equal(t, "follow up", p.CreateTask.Tasks[0].Description)
}

func TestDecodePayload_CreateTaskExplicitEmptyList(t *testing.T) {
	// An explicit empty list is not reinterpreted as a single task shape.
	p, err := DecodePayload(model.ActionCreateTask, []byte(`{"tasks":[]}`))
	require.NoError(t, err)
	require.NotNil(t, p.CreateTask)
	assert.Empty(t, p.CreateTask.Tasks)
}

func TestDecodePayload_CreateDeadline(t *testing.T) {
	raw := []byte(`{"title":"File response","startAt":"2026-02-01T00:00:00Z","allDay":true}`)
	p, err := DecodePayload(model.ActionCreateDeadline, raw)
	require.NoError(t, err)

	require.NotNil(t, p.CreateDeadline)
	assert.Equal(t, "File response", p.CreateDeadline.Title)
	require.NotNil(t, p.CreateDeadline.StartAt)
	assert.True(t, p.CreateDeadline.AllDay)
}

func TestDecodePayload_Recommendation(t *testing.T) {
	raw := []byte(`{"summary":"Review these","findingKeys":["parties:claimant_name"]}`)
	p, err := DecodePayload(model.ActionAIRecommendation, raw)
	require.NoError(t, err)

	require.NotNil(t, p.Recommendation)
	assert.Equal(t, "Review these", p.Recommendation.Summary)
	assert.Equal(t, []string{"parties:claimant_name"}, p.Recommendation.FindingKeys)
}

func TestDecodePayload_EmptyRawZeroBranch(t *testing.T) {
	p, err := DecodePayload(model.ActionCreateTask, nil)
	require.NoError(t, err)
	require.NotNil(t, p.CreateTask)
	assert.Empty(t, p.CreateTask.Tasks)
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	_, err := DecodePayload(model.ActionCreateDeadline, []byte(`{"title":`))
	assert.Error(t, err)
}

func TestDecodePayload_InformationalTypeAllNil(t *testing.T) {
	p, err := DecodePayload(model.ActionFlagRisk, []byte(`{"anything":"goes"}`))
	require.NoError(t, err)
	assert.Nil(t, p.CreateTask)
	assert.Nil(t, p.CreateDeadline)
	assert.Nil(t, p.Recommendation)
}
