package pipeline

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/pkg/llm"
)

func newTestRun() *model.PipelineRun {
	return &model.PipelineRun{
		Status:        model.RunQueued,
		StageStatuses: NewStageStatuses(),
	}
}

func TestNewStageStatuses_AllPending(t *testing.T) {
	m := NewStageStatuses()
	assert.Len(t, m, len(StageOrder))
	for _, s := range StageOrder {
		assert.Equal(t, model.StagePending, m[s])
	}
}

func TestStartStage_MarksRunning(t *testing.T) {
	run := newTestRun()
	StartStage(run, model.StageIntake)

	assert.Equal(t, model.RunRunning, run.Status)
	assert.Equal(t, model.StageIntake, run.CurrentStage)
	assert.Equal(t, model.StageRunning, run.StageStatuses[model.StageIntake])
}

func TestStartStage_TerminalRunUnchanged(t *testing.T) {
	run := newTestRun()
	FailRun(run, model.StageClassify, eris.New("boom"))

	StartStage(run, model.StageExtract)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.NotEqual(t, model.StageRunning, run.StageStatuses[model.StageExtract])
}

func TestFailRun_SkipsRemainingStages(t *testing.T) {
	run := newTestRun()
	StartStage(run, model.StageIntake)
	CompleteStage(run, model.StageIntake)
	StartStage(run, model.StageOCR)
	FailRun(run, model.StageOCR, eris.New("ocr exploded"))

	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, model.StageOCR, run.FailedStage)
	assert.Equal(t, model.StageCompleted, run.StageStatuses[model.StageIntake])
	assert.Equal(t, model.StageFailed, run.StageStatuses[model.StageOCR])
	assert.Equal(t, model.StageSkipped, run.StageStatuses[model.StageClassify])
	assert.Equal(t, model.StageSkipped, run.StageStatuses[model.StageActions])
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, "ocr exploded", run.RawError)
	assert.NotContains(t, run.FailureReason, "exploded")
}

func TestCompleteStage_FailedStaysFailed(t *testing.T) {
	run := newTestRun()
	run.StageStatuses[model.StageExtract] = model.StageFailed
	CompleteStage(run, model.StageExtract)
	assert.Equal(t, model.StageFailed, run.StageStatuses[model.StageExtract])
}

func TestCompleteRun_Terminal(t *testing.T) {
	run := newTestRun()
	CompleteRun(run)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.True(t, run.Status.Terminal())
	require.NotNil(t, run.CompletedAt)
}

func TestSanitizeFailure_ClientErrorKinds(t *testing.T) {
	cases := []struct {
		kind llm.ErrorKind
		want string
	}{
		{llm.KindConfig, "Document analysis is not configured. Contact your administrator."},
		{llm.KindRateLimited, "The analysis service is busy. The document will be retried shortly."},
		{llm.KindTimeout, "The analysis service was temporarily unavailable."},
		{llm.KindNetwork, "The analysis service was temporarily unavailable."},
		{llm.KindTransient, "The analysis service was temporarily unavailable."},
		{llm.KindAPI, "The analysis service rejected the request."},
	}
	for _, tc := range cases {
		err := &llm.ClientError{Kind: tc.kind, Err: eris.New("secret provider detail")}
		got := SanitizeFailure(model.StageExtract, err)
		assert.Equal(t, tc.want, got)
		assert.NotContains(t, got, "secret")
	}
}

func TestSanitizeFailure_WrappedClientError(t *testing.T) {
	inner := &llm.ClientError{Kind: llm.KindRateLimited}
	err := eris.Wrap(inner, "extract: inference chunk 2/3")
	got := SanitizeFailure(model.StageExtract, err)
	assert.Equal(t, "The analysis service is busy. The document will be retried shortly.", got)
}

func TestSanitizeFailure_StageFallbacks(t *testing.T) {
	err := eris.New("pq: relation findings does not exist")
	assert.Equal(t, "The document could not be loaded for analysis.", SanitizeFailure(model.StageIntake, err))
	assert.Equal(t, "Text could not be extracted from the document.", SanitizeFailure(model.StageOCR, err))
	assert.Equal(t, "The document type could not be determined.", SanitizeFailure(model.StageClassify, err))
	assert.Equal(t, "Key details could not be extracted from the document.", SanitizeFailure(model.StageExtract, err))
	assert.Equal(t, "Extracted details could not be saved.", SanitizeFailure(model.StageReconcile, err))
	assert.Equal(t, "Suggested actions could not be generated.", SanitizeFailure(model.StageActions, err))
}
