package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/findings"
	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/store"
)

// reconcile consolidates raw extractions into persisted findings: dedupe,
// impact classification, prior-correction replay, per-field conflict
// resolution, then a single insert.
func (o *Orchestrator) reconcile(ctx context.Context, st *runState) (bool, error) {
	if st.snap == nil {
		return true, nil
	}
	if len(st.raw) == 0 {
		st.run.FindingsCount = 0
		return false, nil
	}

	deduped := findings.Deduplicate(st.raw)
	fs := o.processor.Process(deduped, st.snap.FieldMap)

	o.applyCorrections(ctx, st, fs)
	o.resolveConflicts(st, fs)

	now := time.Now().UTC()
	for i := range fs {
		fs[i].ID = uuid.New()
		fs[i].TenantID = st.run.TenantID
		fs[i].MatterID = st.run.MatterID
		fs[i].RunID = st.run.ID
		fs[i].CreatedAt = now
		if fs[i].Status == model.FindingAutoApplied {
			fs[i].ResolvedAt = &now
		}
	}

	if err := o.store.InsertFindings(ctx, fs); err != nil {
		return false, eris.Wrap(err, "reconcile: persist findings")
	}
	st.findings = fs
	st.run.FindingsCount = len(fs)
	return false, nil
}

// applyCorrections replays prior human corrections at matter or firm scope:
// a value a human already corrected is replaced up front and applied
// without another review round trip.
func (o *Orchestrator) applyCorrections(ctx context.Context, st *runState, fs []model.Finding) {
	seen := make(map[string][]model.EntityCorrection)
	for i := range fs {
		f := &fs[i]
		corrections, ok := seen[f.FieldKey]
		if !ok {
			var err error
			corrections, err = o.store.ListCorrections(ctx, st.run.TenantID, store.CorrectionFilter{
				FieldKey: f.FieldKey,
				MatterID: st.run.MatterID,
			})
			if err != nil {
				zap.L().Warn("reconcile: list corrections failed",
					zap.String("field_key", f.FieldKey),
					zap.Error(err),
				)
				corrections = nil
			}
			seen[f.FieldKey] = corrections
		}

		for _, c := range corrections {
			if findings.NormalizeValue(c.OriginalValue) == findings.NormalizeValue(f.Value) {
				f.Value = c.CorrectedValue
				f.Status = model.FindingAutoApplied
				break
			}
		}
	}
}

// resolveConflicts applies the pack's reconciliation strategy wherever one
// field produced several distinct values, and auto-applies unconflicted
// winners that clear the field's confidence threshold.
func (o *Orchestrator) resolveConflicts(st *runState, fs []model.Finding) {
	groups := make(map[string][]int)
	var order []string
	for i, f := range fs {
		key := f.CategoryKey + ":" + f.FieldKey
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idxs := groups[key]
		field := st.snap.FieldMap[key]

		strategy := model.ReconcileHighestConfidence
		if rule := st.snap.Rule(fs[idxs[0]].FieldKey); rule != nil {
			strategy = rule.Strategy
		}

		if len(idxs) == 1 {
			o.maybeAutoApply(&fs[idxs[0]], field, strategy)
			continue
		}

		// Conflicting values are inherently uncertain; every member is
		// escalated to at least high impact.
		for _, i := range idxs {
			if !fs[i].Impact.AtLeast(model.ImpactHigh) {
				fs[i].Impact = model.ImpactHigh
			}
		}
		if strategy == model.ReconcileManualReview {
			continue
		}

		winner := pickWinner(fs, idxs, strategy)
		o.maybeAutoApply(&fs[winner], field, strategy)
	}
}

// maybeAutoApply promotes a finding to auto_applied when the pack trusts
// it: threshold cleared, no human-review flag, no manual_review strategy.
// Corrections already applied stay applied.
func (o *Orchestrator) maybeAutoApply(f *model.Finding, field *model.TaxonomyField, strategy model.ReconcileStrategy) {
	if f.Status == model.FindingAutoApplied {
		return
	}
	if field == nil || field.RequiresHumanReview || strategy == model.ReconcileManualReview {
		return
	}
	if f.Confidence >= field.ConfidenceThreshold {
		f.Status = model.FindingAutoApplied
	}
}

// pickWinner selects the surviving value among conflicting findings.
func pickWinner(fs []model.Finding, idxs []int, strategy model.ReconcileStrategy) int {
	winner := idxs[0]
	for _, i := range idxs[1:] {
		switch strategy {
		case model.ReconcileLongest:
			if len(fs[i].Value) > len(fs[winner].Value) {
				winner = i
			}
		case model.ReconcileNewest:
			// Findings keep extraction order, so the later index is the
			// most recent occurrence in the document.
			winner = i
		default:
			if fs[i].Confidence > fs[winner].Confidence {
				winner = i
			}
		}
	}
	return winner
}
