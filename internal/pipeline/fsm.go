package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/lexhaven/docintel/pkg/llm"

	"github.com/lexhaven/docintel/internal/model"
)

// StageOrder is the fixed execution order of pipeline stages.
var StageOrder = []model.Stage{
	model.StageIntake,
	model.StageOCR,
	model.StageClassify,
	model.StageExtract,
	model.StageReconcile,
	model.StageActions,
}

// NewStageStatuses returns the initial stage map with every stage pending.
func NewStageStatuses() map[model.Stage]model.StageStatus {
	m := make(map[model.Stage]model.StageStatus, len(StageOrder))
	for _, s := range StageOrder {
		m[s] = model.StagePending
	}
	return m
}

// StartStage marks a stage running and makes it the run's current stage.
// Terminal runs never change.
func StartStage(run *model.PipelineRun, stage model.Stage) {
	if run.Status.Terminal() {
		return
	}
	run.Status = model.RunRunning
	run.CurrentStage = stage
	run.StageStatuses[stage] = model.StageRunning
}

// CompleteStage records a finished stage. Stage statuses only advance; a
// stage already failed stays failed.
func CompleteStage(run *model.PipelineRun, stage model.Stage) {
	if run.StageStatuses[stage] == model.StageFailed {
		return
	}
	run.StageStatuses[stage] = model.StageCompleted
}

// SkipStage records a stage that did not need to run.
func SkipStage(run *model.PipelineRun, stage model.Stage) {
	if run.StageStatuses[stage] == model.StageFailed {
		return
	}
	run.StageStatuses[stage] = model.StageSkipped
}

// FailRun transitions the run to its terminal failed state, recording the
// failed stage, a sanitized user-facing reason, and the raw error for
// operators. Remaining pending stages are marked skipped.
func FailRun(run *model.PipelineRun, stage model.Stage, err error) {
	run.StageStatuses[stage] = model.StageFailed
	run.Status = model.RunFailed
	run.FailedStage = stage
	run.FailureReason = SanitizeFailure(stage, err)
	if err != nil {
		run.RawError = err.Error()
	}
	now := time.Now().UTC()
	run.CompletedAt = &now

	for _, s := range StageOrder {
		if run.StageStatuses[s] == model.StagePending {
			run.StageStatuses[s] = model.StageSkipped
		}
	}
}

// CompleteRun transitions the run to its terminal completed state.
func CompleteRun(run *model.PipelineRun) {
	run.Status = model.RunCompleted
	run.CurrentStage = ""
	now := time.Now().UTC()
	run.CompletedAt = &now
}

// SanitizeFailure maps an internal stage error to a user-facing message.
// Provider details, prompts, and stack traces never leave the run record.
func SanitizeFailure(stage model.Stage, err error) string {
	var ce *llm.ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case llm.KindConfig:
			return "Document analysis is not configured. Contact your administrator."
		case llm.KindRateLimited:
			return "The analysis service is busy. The document will be retried shortly."
		case llm.KindTimeout, llm.KindNetwork, llm.KindTransient:
			return "The analysis service was temporarily unavailable."
		default:
			return "The analysis service rejected the request."
		}
	}

	switch stage {
	case model.StageIntake:
		return "The document could not be loaded for analysis."
	case model.StageOCR:
		return "Text could not be extracted from the document."
	case model.StageClassify:
		return "The document type could not be determined."
	case model.StageExtract:
		return "Key details could not be extracted from the document."
	case model.StageReconcile:
		return "Extracted details could not be saved."
	case model.StageActions:
		return "Suggested actions could not be generated."
	default:
		return fmt.Sprintf("Processing failed during the %s stage.", stage)
	}
}
