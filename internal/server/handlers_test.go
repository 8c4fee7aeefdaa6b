package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/docintel/internal/actions"
	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/pipeline"
	"github.com/lexhaven/docintel/internal/queue"
	"github.com/lexhaven/docintel/internal/store"
)

// fakeStore backs handler tests with canned data and recorded writes.
type fakeStore struct {
	store.Store
	run         *model.PipelineRun
	findings    []model.Finding
	runActions  []model.Action
	finding     *model.Finding
	action      *model.Action
	document    *model.Document
	createdRuns []*model.PipelineRun

	updatedFindings []*model.Finding
	corrections     []*model.EntityCorrection
	updatedActions  []*model.Action
	riskUpdates     []int
	tasks           []*model.Task
	timeline        []*model.TimelineEvent
	marks           []model.ExecutionState
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) GetRun(_ context.Context, tenantID, runID uuid.UUID) (*model.PipelineRun, error) {
	if s.run == nil || s.run.ID != runID || s.run.TenantID != tenantID {
		return nil, eris.New("no rows")
	}
	return s.run, nil
}

func (s *fakeStore) ListFindings(context.Context, uuid.UUID, store.FindingFilter) ([]model.Finding, error) {
	return s.findings, nil
}

func (s *fakeStore) ListRunActions(context.Context, uuid.UUID, uuid.UUID) ([]model.Action, error) {
	return s.runActions, nil
}

func (s *fakeStore) GetFinding(_ context.Context, tenantID, findingID uuid.UUID) (*model.Finding, error) {
	if s.finding == nil || s.finding.ID != findingID || s.finding.TenantID != tenantID {
		return nil, eris.New("no rows")
	}
	clone := *s.finding
	return &clone, nil
}

func (s *fakeStore) GetAction(_ context.Context, tenantID, actionID uuid.UUID) (*model.Action, error) {
	if s.action == nil || s.action.ID != actionID || s.action.TenantID != tenantID {
		return nil, eris.New("no rows")
	}
	clone := *s.action
	return &clone, nil
}

func (s *fakeStore) GetActionForUpdate(ctx context.Context, tenantID, actionID uuid.UUID) (*model.Action, error) {
	return s.GetAction(ctx, tenantID, actionID)
}

func (s *fakeStore) GetDocument(_ context.Context, tenantID, documentID uuid.UUID) (*model.Document, error) {
	if s.document == nil || s.document.ID != documentID || s.document.TenantID != tenantID {
		return nil, eris.New("no rows")
	}
	return s.document, nil
}

func (s *fakeStore) CreateRun(_ context.Context, run *model.PipelineRun) error {
	s.createdRuns = append(s.createdRuns, run)
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(context.Context, store.Store) error) error {
	return fn(ctx, s)
}

func (s *fakeStore) UpdateFindingResolution(_ context.Context, f *model.Finding) error {
	s.updatedFindings = append(s.updatedFindings, f)
	return nil
}

func (s *fakeStore) InsertCorrection(_ context.Context, c *model.EntityCorrection) error {
	s.corrections = append(s.corrections, c)
	return nil
}

func (s *fakeStore) UpdateActionResolution(_ context.Context, a *model.Action) error {
	s.updatedActions = append(s.updatedActions, a)
	if s.action != nil && s.action.ID == a.ID {
		s.action.Status = a.Status
		s.action.ResolvedAt = a.ResolvedAt
	}
	return nil
}

func (s *fakeStore) UpdateMatterRisk(_ context.Context, _, _ uuid.UUID, score int, _ []byte) error {
	s.riskUpdates = append(s.riskUpdates, score)
	return nil
}

func (s *fakeStore) MarkActionExecution(_ context.Context, _, _ uuid.UUID, state model.ExecutionState, _ string, _ *time.Time) error {
	s.marks = append(s.marks, state)
	return nil
}

func (s *fakeStore) InsertTask(_ context.Context, t *model.Task) error {
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *fakeStore) InsertTimelineEvent(_ context.Context, e *model.TimelineEvent) error {
	s.timeline = append(s.timeline, e)
	return nil
}

type fakeQueue struct {
	jobs []*queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context, []string) (*queue.Job, error) { return nil, nil }
func (q *fakeQueue) Complete(context.Context, uuid.UUID) error             { return nil }
func (q *fakeQueue) Fail(context.Context, *queue.Job, error, time.Duration) error {
	return nil
}

func newTestServer(st *fakeStore, q *fakeQueue) *Server {
	orch := pipeline.New(pipeline.Config{}, st, nil, nil, nil, nil)
	return New(Config{}, st, q, orch, actions.NewExecutor(st))
}

func doRequest(t *testing.T, srv *Server, method, path string, tenantID *uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenantID != nil {
		req.Header.Set("X-Tenant-ID", tenantID.String())
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestAPI_MissingTenantHeader(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodGet, "/api/pipeline/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	tenantID := uuid.New()
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodGet, "/api/pipeline/"+uuid.NewString(), &tenantID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_CrossTenantIsNotFound(t *testing.T) {
	runTenant := uuid.New()
	otherTenant := uuid.New()
	run := &model.PipelineRun{ID: uuid.New(), TenantID: runTenant, Status: model.RunCompleted}
	srv := newTestServer(&fakeStore{run: run}, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodGet, "/api/pipeline/"+run.ID.String(), &otherTenant, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_ReturnsFindingsAndActions(t *testing.T) {
	tenantID := uuid.New()
	run := &model.PipelineRun{ID: uuid.New(), TenantID: tenantID, MatterID: uuid.New(), Status: model.RunCompleted}
	st := &fakeStore{
		run:        run,
		findings:   []model.Finding{{ID: uuid.New(), FieldKey: "claimant_name"}},
		runActions: []model.Action{{ID: uuid.New(), Title: "Verify claimant"}},
	}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodGet, "/api/pipeline/"+run.ID.String(), &tenantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run      model.PipelineRun `json:"run"`
		Findings []model.Finding   `json:"findings"`
		Actions  []model.Action    `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID, resp.Run.ID)
	assert.Len(t, resp.Findings, 1)
	assert.Len(t, resp.Actions, 1)
}

func TestPatchFinding_RevisedRequiresValueAndScope(t *testing.T) {
	tenantID := uuid.New()
	st := &fakeStore{}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/findings/"+uuid.NewString(), &tenantID,
		map[string]string{"status": "revised"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPatch, "/api/pipeline/findings/"+uuid.NewString(), &tenantID,
		map[string]string{"status": "revised", "correctedValue": "Jane Doe", "correctionScope": "galaxy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Validation rejects before any load or write.
	assert.Empty(t, st.updatedFindings)
	assert.Empty(t, st.corrections)
}

func TestPatchFinding_InvalidStatus(t *testing.T) {
	tenantID := uuid.New()
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/findings/"+uuid.NewString(), &tenantID,
		map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchFinding_Accepted(t *testing.T) {
	tenantID := uuid.New()
	finding := &model.Finding{
		ID:       uuid.New(),
		TenantID: tenantID,
		MatterID: uuid.New(),
		FieldKey: "claimant_name",
		Value:    "John Smith",
		Status:   model.FindingPending,
	}
	st := &fakeStore{finding: finding}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/findings/"+finding.ID.String(), &tenantID,
		map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, st.updatedFindings, 1)
	assert.Equal(t, model.FindingAccepted, st.updatedFindings[0].Status)
	assert.NotNil(t, st.updatedFindings[0].ResolvedAt)
	assert.Empty(t, st.corrections)
	// Resolution triggers a risk recompute.
	assert.Len(t, st.riskUpdates, 1)
}

func TestPatchFinding_RevisedRecordsCorrection(t *testing.T) {
	tenantID := uuid.New()
	finding := &model.Finding{
		ID:       uuid.New(),
		TenantID: tenantID,
		MatterID: uuid.New(),
		FieldKey: "claimant_name",
		Value:    "John Smith",
		Status:   model.FindingPending,
	}
	st := &fakeStore{finding: finding}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/findings/"+finding.ID.String(), &tenantID,
		map[string]string{"status": "revised", "correctedValue": "Jon Smyth", "correctionScope": "firm"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, st.updatedFindings, 1)
	assert.Equal(t, model.FindingRevised, st.updatedFindings[0].Status)
	assert.Equal(t, "Jon Smyth", st.updatedFindings[0].Value)

	require.Len(t, st.corrections, 1)
	c := st.corrections[0]
	assert.Equal(t, "John Smith", c.OriginalValue)
	assert.Equal(t, "Jon Smyth", c.CorrectedValue)
	assert.Equal(t, model.ScopeFirm, c.Scope)
	assert.Equal(t, finding.ID, c.FindingID)
}

func TestPatchAction_InvalidStatus(t *testing.T) {
	tenantID := uuid.New()
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/actions/"+uuid.NewString(), &tenantID,
		map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchAction_AlreadyResolvedConflicts(t *testing.T) {
	tenantID := uuid.New()
	action := &model.Action{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   model.ActionDismissed,
	}
	srv := newTestServer(&fakeStore{action: action}, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/actions/"+action.ID.String(), &tenantID,
		map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPatchAction_Dismissed(t *testing.T) {
	tenantID := uuid.New()
	action := &model.Action{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ActionType: model.ActionCreateTask,
		Status:     model.ActionPending,
		ExecState:  model.ExecNotExecuted,
	}
	st := &fakeStore{action: action}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/actions/"+action.ID.String(), &tenantID,
		map[string]string{"status": "dismissed"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, st.updatedActions, 1)
	assert.Equal(t, model.ActionDismissed, st.updatedActions[0].Status)
	assert.Empty(t, st.tasks)
	assert.Empty(t, st.marks)
}

func TestPatchAction_AcceptedExecutesTask(t *testing.T) {
	tenantID := uuid.New()
	payload, _ := json.Marshal(actions.CreateTaskPayload{Tasks: []actions.TaskSpec{{Title: "Call adjuster"}}})
	action := &model.Action{
		ID:         uuid.New(),
		TenantID:   tenantID,
		MatterID:   uuid.New(),
		ActionType: model.ActionCreateTask,
		Title:      "Create follow-up task",
		Status:     model.ActionPending,
		ExecState:  model.ExecNotExecuted,
		Payload:    payload,
	}
	st := &fakeStore{action: action}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/actions/"+action.ID.String(), &tenantID,
		map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["executed"])

	require.Len(t, st.tasks, 1)
	assert.Equal(t, "Call adjuster", st.tasks[0].Title)
	require.Len(t, st.marks, 1)
	assert.Equal(t, model.ExecExecuted, st.marks[0])
}

func TestPatchAction_AcceptedWithEmptyTasksReportsValidationError(t *testing.T) {
	tenantID := uuid.New()
	payload, _ := json.Marshal(actions.CreateTaskPayload{})
	action := &model.Action{
		ID:         uuid.New(),
		TenantID:   tenantID,
		MatterID:   uuid.New(),
		ActionType: model.ActionCreateTask,
		Status:     model.ActionPending,
		ExecState:  model.ExecNotExecuted,
		Payload:    payload,
	}
	st := &fakeStore{action: action}
	srv := newTestServer(st, &fakeQueue{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/pipeline/actions/"+action.ID.String(), &tenantID,
		map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["executed"])
	assert.Equal(t, "No tasks in actionPayload", resp["error"])
	assert.Empty(t, st.tasks)
}

func TestProcessDocument_EnqueuesRun(t *testing.T) {
	tenantID := uuid.New()
	doc := &model.Document{ID: uuid.New(), TenantID: tenantID, MatterID: uuid.New()}
	st := &fakeStore{document: doc}
	q := &fakeQueue{}
	srv := newTestServer(st, q)

	rec := doRequest(t, srv, http.MethodPost, "/api/documents/"+doc.ID.String()+"/process", &tenantID, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, st.createdRuns, 1)
	run := st.createdRuns[0]
	assert.Equal(t, model.RunQueued, run.Status)
	assert.Equal(t, doc.MatterID, run.MatterID)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, queue.KindProcessDocument, q.jobs[0].Kind)

	var p queue.ProcessDocumentPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &p))
	assert.Equal(t, run.ID, p.RunID)
	assert.Equal(t, doc.ID, p.DocumentID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID.String(), resp["runId"])
}

func TestProcessDocument_CarriesOptionsAndTriggeredBy(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	doc := &model.Document{ID: uuid.New(), TenantID: tenantID, MatterID: uuid.New()}
	st := &fakeStore{document: doc}
	q := &fakeQueue{}
	srv := newTestServer(st, q)

	rec := doRequest(t, srv, http.MethodPost, "/api/documents/"+doc.ID.String()+"/process", &tenantID, map[string]any{
		"triggeredBy": userID,
		"options":     map[string]any{"ocrLanguage": "es"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, q.jobs, 1)
	var p queue.ProcessDocumentPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &p))
	require.NotNil(t, p.TriggeredBy)
	assert.Equal(t, userID, *p.TriggeredBy)
	assert.JSONEq(t, `{"ocrLanguage":"es"}`, string(p.Options))
}

func TestProcessDocument_MalformedBody(t *testing.T) {
	tenantID := uuid.New()
	doc := &model.Document{ID: uuid.New(), TenantID: tenantID, MatterID: uuid.New()}
	srv := newTestServer(&fakeStore{document: doc}, &fakeQueue{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+doc.ID.String()+"/process", strings.NewReader(`{"options":`))
	req.Header.Set("X-Tenant-ID", tenantID.String())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessDocument_UnknownDocument(t *testing.T) {
	tenantID := uuid.New()
	srv := newTestServer(&fakeStore{}, &fakeQueue{})
	rec := doRequest(t, srv, http.MethodPost, "/api/documents/"+uuid.NewString()+"/process", &tenantID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
