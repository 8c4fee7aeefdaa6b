// Package pipeline orchestrates the multi-stage document intelligence run:
// intake, ocr, classify, extract, reconcile, actions.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/findings"
	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/risk"
	"github.com/lexhaven/docintel/internal/store"
	"github.com/lexhaven/docintel/internal/taxonomy"
	"github.com/lexhaven/docintel/pkg/llm"
)

// TextExtractor turns a document without extracted text into text. The
// built-in pipeline only consumes its output; OCR engines plug in here.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc *model.Document) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Model is the default inference model when no pack template overrides it.
	Model string `yaml:"model" mapstructure:"model"`

	// ChunkSize is the extraction chunk length in characters.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`

	// ChunkOverlap is the number of trailing characters repeated at the head
	// of the next chunk so values spanning a boundary survive.
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// Orchestrator executes pipeline runs. Stages run sequentially within a
// run; concurrency comes from the worker pool running many runs at once.
type Orchestrator struct {
	cfg       Config
	store     store.Store
	llm       *llm.Client
	resolver  *taxonomy.Resolver
	processor findings.Processor
	extractor TextExtractor
	notifier  Notifier
}

// New creates an Orchestrator. extractor may be nil when OCR is handled
// upstream; notifier may be nil to disable notifications.
func New(cfg Config, st store.Store, client *llm.Client, resolver *taxonomy.Resolver, extractor TextExtractor, notifier Notifier) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 400
	}
	if notifier == nil {
		notifier = ZapNotifier{}
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		llm:       client,
		resolver:  resolver,
		processor: findings.Processor{},
		extractor: extractor,
		notifier:  notifier,
	}
}

// runState carries intermediate results between stages of one run.
type runState struct {
	run      *model.PipelineRun
	doc      *model.Document
	matter   *model.Matter
	snap     *taxonomy.Snapshot
	docType  *model.TaxonomyDocumentType
	raw      []model.RawFinding
	findings []model.Finding
	actions  []model.Action
}

// CreateRun registers a queued run for a document. The worker picks it up
// via the job queue.
func (o *Orchestrator) CreateRun(ctx context.Context, tenantID, documentID uuid.UUID, triggeredBy *uuid.UUID) (*model.PipelineRun, error) {
	doc, err := o.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load document")
	}

	now := time.Now().UTC()
	run := &model.PipelineRun{
		ID:            uuid.New(),
		TenantID:      tenantID,
		MatterID:      doc.MatterID,
		DocumentID:    documentID,
		Status:        model.RunQueued,
		StageStatuses: NewStageStatuses(),
		TriggeredBy:   triggeredBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// Run executes a queued run to a terminal state. Redelivery of an already
// terminal run is a no-op. The returned error is reserved for infrastructure
// failures that should requeue the job; stage failures end the run instead.
func (o *Orchestrator) Run(ctx context.Context, tenantID, runID uuid.UUID) error {
	run, err := o.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load run")
	}
	if run.Status.Terminal() {
		zap.L().Info("pipeline: run already terminal, skipping",
			zap.String("run_id", runID.String()),
			zap.String("status", string(run.Status)),
		)
		return nil
	}
	if run.StageStatuses == nil {
		run.StageStatuses = NewStageStatuses()
	}

	log := zap.L().With(
		zap.String("run_id", run.ID.String()),
		zap.String("tenant_id", run.TenantID.String()),
		zap.String("document_id", run.DocumentID.String()),
	)
	log.Info("pipeline: starting run")

	st := &runState{run: run}

	// Stage tracking helper. fn reports whether the stage was skipped; a
	// returned error fails the run terminally.
	runStage := func(stage model.Stage, fn func() (bool, error)) bool {
		StartStage(run, stage)
		o.persistRun(ctx, run, log)

		start := time.Now()
		skipped, stageErr := fn()
		duration := time.Since(start)

		if stageErr != nil {
			FailRun(run, stage, stageErr)
			o.persistRun(ctx, run, log)
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage)),
				zap.Duration("duration", duration),
				zap.Error(stageErr),
			)
			return false
		}
		if skipped {
			SkipStage(run, stage)
		} else {
			CompleteStage(run, stage)
		}
		o.persistRun(ctx, run, log)
		log.Info("pipeline: stage done",
			zap.String("stage", string(stage)),
			zap.String("status", string(run.StageStatuses[stage])),
			zap.Duration("duration", duration),
		)
		return true
	}

	ok := runStage(model.StageIntake, func() (bool, error) {
		return false, o.intake(ctx, tenantID, st)
	})
	if ok {
		ok = runStage(model.StageOCR, func() (bool, error) {
			return o.ocr(ctx, st)
		})
	}
	if ok {
		ok = runStage(model.StageClassify, func() (bool, error) {
			return o.classify(ctx, st)
		})
	}
	if ok {
		ok = runStage(model.StageExtract, func() (bool, error) {
			return o.extract(ctx, st)
		})
	}
	if ok {
		ok = runStage(model.StageReconcile, func() (bool, error) {
			return o.reconcile(ctx, st)
		})
	}
	if ok {
		ok = runStage(model.StageActions, func() (bool, error) {
			return o.proposeActions(ctx, st)
		})
	}

	if !ok {
		o.finishFailed(ctx, run, log)
		return nil
	}

	CompleteRun(run)
	o.persistRun(ctx, run, log)
	o.finishCompleted(ctx, st, log)

	log.Info("pipeline: run completed",
		zap.String("document_type", run.DocumentType),
		zap.Int("findings", run.FindingsCount),
		zap.Int("actions", run.ActionsCount),
	)
	return nil
}

// intake loads the document and its matter and checks the document can be
// analyzed at all.
func (o *Orchestrator) intake(ctx context.Context, tenantID uuid.UUID, st *runState) error {
	doc, err := o.store.GetDocument(ctx, tenantID, st.run.DocumentID)
	if err != nil {
		return eris.Wrap(err, "intake: load document")
	}
	matter, err := o.store.GetMatter(ctx, tenantID, doc.MatterID)
	if err != nil {
		return eris.Wrap(err, "intake: load matter")
	}
	st.doc = doc
	st.matter = matter
	return nil
}

// ocr ensures extracted text exists. Documents uploaded with text already
// extracted skip the stage.
func (o *Orchestrator) ocr(ctx context.Context, st *runState) (bool, error) {
	if st.doc.ExtractedText != "" {
		return true, nil
	}
	if o.extractor == nil {
		return false, eris.New("ocr: document has no extracted text and no extractor is configured")
	}
	text, err := o.extractor.ExtractText(ctx, st.doc)
	if err != nil {
		return false, eris.Wrap(err, "ocr: extract text")
	}
	if text == "" {
		return false, eris.New("ocr: extractor produced no text")
	}
	st.doc.ExtractedText = text
	return false, nil
}

// persistRun saves run state transitions. Persistence failures are logged,
// not fatal: the in-memory run keeps advancing and the next save repairs
// the record.
func (o *Orchestrator) persistRun(ctx context.Context, run *model.PipelineRun, log *zap.Logger) {
	if err := o.store.UpdateRun(ctx, run); err != nil {
		log.Warn("pipeline: persist run failed", zap.Error(err))
	}
}

// finishCompleted performs the best-effort completion side effects: risk
// recompute, timeline event, notification. None of them can fail the run.
func (o *Orchestrator) finishCompleted(ctx context.Context, st *runState, log *zap.Logger) {
	run := st.run
	o.RecomputeRisk(ctx, run.TenantID, run.MatterID)

	o.writeTimeline(ctx, run, "document_processed", log)
	o.notifier.RunCompleted(ctx, run)
}

func (o *Orchestrator) finishFailed(ctx context.Context, run *model.PipelineRun, log *zap.Logger) {
	o.writeTimeline(ctx, run, "document_processing_failed", log)
	o.notifier.RunFailed(ctx, run)
}

func (o *Orchestrator) writeTimeline(ctx context.Context, run *model.PipelineRun, eventType string, log *zap.Logger) {
	summary := "Document processed"
	if eventType == "document_processing_failed" {
		summary = "Document processing failed during " + string(run.FailedStage)
	}
	refID := run.ID
	event := &model.TimelineEvent{
		ID:        uuid.New(),
		TenantID:  run.TenantID,
		MatterID:  run.MatterID,
		EventType: eventType,
		Summary:   summary,
		RefID:     &refID,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.InsertTimelineEvent(ctx, event); err != nil {
		log.Warn("pipeline: timeline event failed", zap.Error(err))
	}
}

// RecomputeRisk recalculates and stores a matter's risk score from its
// current findings. It is idempotent and safe to call concurrently; the
// last write wins.
func (o *Orchestrator) RecomputeRisk(ctx context.Context, tenantID, matterID uuid.UUID) {
	all, err := o.store.ListFindings(ctx, tenantID, store.FindingFilter{MatterID: matterID})
	if err != nil {
		zap.L().Warn("pipeline: risk recompute list findings failed",
			zap.String("matter_id", matterID.String()),
			zap.Error(err),
		)
		return
	}
	score := risk.Calculate(all)
	factors, err := risk.MarshalFactors(score.Factors)
	if err != nil {
		zap.L().Warn("pipeline: risk factors marshal failed", zap.Error(err))
		return
	}
	if err := o.store.UpdateMatterRisk(ctx, tenantID, matterID, score.Score, factors); err != nil {
		zap.L().Warn("pipeline: risk update failed",
			zap.String("matter_id", matterID.String()),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("pipeline: risk recomputed",
		zap.String("matter_id", matterID.String()),
		zap.Int("score", score.Score),
	)
}
