package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
)

// Notifier delivers user-facing pipeline events. Delivery is best effort;
// the pipeline never fails a run over a notification.
type Notifier interface {
	RunCompleted(ctx context.Context, run *model.PipelineRun)
	RunFailed(ctx context.Context, run *model.PipelineRun)
}

// ZapNotifier logs notifications. It stands in until a push channel exists.
type ZapNotifier struct{}

func (ZapNotifier) RunCompleted(_ context.Context, run *model.PipelineRun) {
	zap.L().Info("notify: document processed",
		zap.String("run_id", run.ID.String()),
		zap.String("tenant_id", run.TenantID.String()),
		zap.String("document_type", run.DocumentType),
		zap.Int("findings", run.FindingsCount),
		zap.Int("actions", run.ActionsCount),
	)
}

func (ZapNotifier) RunFailed(_ context.Context, run *model.PipelineRun) {
	zap.L().Warn("notify: document processing failed",
		zap.String("run_id", run.ID.String()),
		zap.String("tenant_id", run.TenantID.String()),
		zap.String("failed_stage", string(run.FailedStage)),
		zap.String("reason", run.FailureReason),
	)
}
