package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/queue"
	"github.com/lexhaven/docintel/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetRun returns a run with its findings and proposed actions.
// Cross-tenant IDs 404 like unknown ones; existence is never leaked.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.store.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	findings, err := s.store.ListFindings(r.Context(), tenantID, store.FindingFilter{
		MatterID: run.MatterID,
		RunID:    &run.ID,
	})
	if err != nil {
		zap.L().Error("http: list findings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load findings")
		return
	}
	actionList, err := s.store.ListRunActions(r.Context(), tenantID, run.ID)
	if err != nil {
		zap.L().Error("http: list actions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load actions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"findings": findings,
		"actions":  actionList,
	})
}

type patchFindingRequest struct {
	Status          model.FindingStatus   `json:"status"`
	CorrectedValue  string                `json:"correctedValue,omitempty"`
	CorrectionScope model.CorrectionScope `json:"correctionScope,omitempty"`
}

// handlePatchFinding resolves a finding. Revision requires both the
// corrected value and a valid scope, validated before anything persists;
// a revision also records an entity correction for future runs.
func (s *Server) handlePatchFinding(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	findingID, err := uuid.Parse(chi.URLParam(r, "findingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid finding id")
		return
	}

	var req patchFindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case model.FindingAccepted, model.FindingRejected:
	case model.FindingRevised:
		if req.CorrectedValue == "" || !model.ValidCorrectionScope(req.CorrectionScope) {
			writeError(w, http.StatusBadRequest, "revised requires correctedValue and a valid correctionScope")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "status must be accepted, rejected, or revised")
		return
	}

	finding, err := s.store.GetFinding(r.Context(), tenantID, findingID)
	if err != nil {
		writeError(w, http.StatusNotFound, "finding not found")
		return
	}

	now := time.Now().UTC()
	originalValue := finding.Value
	finding.Status = req.Status
	finding.ResolvedAt = &now
	if req.Status == model.FindingRevised {
		finding.Value = req.CorrectedValue
	}

	err = s.store.WithTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		if err := tx.UpdateFindingResolution(ctx, finding); err != nil {
			return err
		}
		if req.Status != model.FindingRevised {
			return nil
		}
		return tx.InsertCorrection(ctx, &model.EntityCorrection{
			ID:             uuid.New(),
			TenantID:       tenantID,
			FindingID:      finding.ID,
			FieldKey:       finding.FieldKey,
			OriginalValue:  originalValue,
			CorrectedValue: req.CorrectedValue,
			Scope:          req.CorrectionScope,
			CreatedAt:      now,
		})
	})
	if err != nil {
		zap.L().Error("http: resolve finding failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update finding")
		return
	}

	// A resolution changes what counts toward risk.
	s.orch.RecomputeRisk(r.Context(), tenantID, finding.MatterID)

	writeJSON(w, http.StatusOK, finding)
}

type patchActionRequest struct {
	Status model.ActionStatus `json:"status"`
}

// handlePatchAction resolves an action proposal. Accepting an executable
// type runs the executor synchronously; the response reports whether the
// side effect ran.
func (s *Server) handlePatchAction(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	actionID, err := uuid.Parse(chi.URLParam(r, "actionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var req patchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.ActionAccepted && req.Status != model.ActionDismissed {
		writeError(w, http.StatusBadRequest, "status must be accepted or dismissed")
		return
	}

	action, err := s.store.GetAction(r.Context(), tenantID, actionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	if action.Status != model.ActionPending {
		writeError(w, http.StatusConflict, "action already resolved")
		return
	}

	now := time.Now().UTC()
	action.Status = req.Status
	action.ResolvedAt = &now
	if err := s.store.UpdateActionResolution(r.Context(), action); err != nil {
		zap.L().Error("http: resolve action failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update action")
		return
	}

	resp := map[string]any{"action": action}
	if req.Status == model.ActionAccepted && action.ActionType.Executable() {
		result, execErr := s.executor.Execute(r.Context(), tenantID, actionID)
		if execErr != nil {
			zap.L().Error("http: action execution failed",
				zap.String("action_id", actionID.String()),
				zap.Error(execErr),
			)
			resp["executed"] = false
			resp["error"] = "action execution failed"
		} else {
			resp["executed"] = result.Executed
			if result.Error != "" {
				resp["error"] = result.Error
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProcessDocument registers a run and enqueues the extraction job.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	// The body is optional; options ride the job payload untouched.
	var body struct {
		TriggeredBy *uuid.UUID      `json:"triggeredBy,omitempty"`
		Options     json.RawMessage `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.orch.CreateRun(r.Context(), tenantID, documentID, body.TriggeredBy)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	job, err := queue.NewJob(queue.KindProcessDocument, tenantID, queue.ProcessDocumentPayload{
		DocumentID:  documentID,
		RunID:       run.ID,
		TriggeredBy: body.TriggeredBy,
		Options:     body.Options,
	})
	if err == nil {
		err = s.queue.Enqueue(r.Context(), job)
	}
	if err != nil {
		zap.L().Error("http: enqueue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue document")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  run.ID,
		"status": run.Status,
	})
}
