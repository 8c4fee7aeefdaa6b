package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/lexhaven/docintel/internal/queue"
)

// HandleProcessDocument is the queue handler for document extraction jobs.
func (o *Orchestrator) HandleProcessDocument(ctx context.Context, job *queue.Job) error {
	var p queue.ProcessDocumentPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return eris.Wrap(err, "pipeline: decode process job payload")
	}
	return o.Run(ctx, job.TenantID, p.RunID)
}

// HandleRecomputeRisk is the queue handler for risk recompute jobs.
func (o *Orchestrator) HandleRecomputeRisk(ctx context.Context, job *queue.Job) error {
	var p queue.RecomputeRiskPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return eris.Wrap(err, "pipeline: decode risk job payload")
	}
	o.RecomputeRisk(ctx, job.TenantID, p.MatterID)
	return nil
}
