// Package store defines the persistence interface for the document
// intelligence pipeline and its Postgres implementation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lexhaven/docintel/internal/model"
)

// DB is the subset of pgxpool.Pool the store uses. pgx.Tx and pgxmock
// satisfy it too, so every store method runs identically inside a
// transaction and under test.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FindingFilter specifies criteria for listing findings.
type FindingFilter struct {
	MatterID uuid.UUID
	RunID    *uuid.UUID
	Statuses []model.FindingStatus
}

// CorrectionFilter selects prior human corrections relevant to a field.
// Firm-scoped corrections match regardless of matter; matter-scoped ones
// only for the given matter.
type CorrectionFilter struct {
	FieldKey string
	MatterID uuid.UUID
}

// Store is the persistence interface for the pipeline. All reads and
// writes are tenant-scoped; a tenant can never observe another tenant's
// rows.
type Store interface {
	// Taxonomy
	ActivePack(ctx context.Context, tenantID *uuid.UUID, practiceArea string) (*model.TaxonomyPack, error)
	UpsertSystemPack(ctx context.Context, pack *model.TaxonomyPack) error

	// Matters and documents
	GetMatter(ctx context.Context, tenantID, matterID uuid.UUID) (*model.Matter, error)
	GetDocument(ctx context.Context, tenantID, documentID uuid.UUID) (*model.Document, error)
	UpdateMatterRisk(ctx context.Context, tenantID, matterID uuid.UUID, score int, factors []byte) error

	// Pipeline runs
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, tenantID, runID uuid.UUID) (*model.PipelineRun, error)
	UpdateRun(ctx context.Context, run *model.PipelineRun) error

	// Findings and corrections
	InsertFindings(ctx context.Context, findings []model.Finding) error
	GetFinding(ctx context.Context, tenantID, findingID uuid.UUID) (*model.Finding, error)
	ListFindings(ctx context.Context, tenantID uuid.UUID, filter FindingFilter) ([]model.Finding, error)
	UpdateFindingResolution(ctx context.Context, f *model.Finding) error
	InsertCorrection(ctx context.Context, c *model.EntityCorrection) error
	ListCorrections(ctx context.Context, tenantID uuid.UUID, filter CorrectionFilter) ([]model.EntityCorrection, error)

	// Actions
	InsertActions(ctx context.Context, actions []model.Action) error
	GetAction(ctx context.Context, tenantID, actionID uuid.UUID) (*model.Action, error)
	// GetActionForUpdate loads an action and holds its row lock for the rest
	// of the enclosing transaction. Concurrent executors serialize here.
	GetActionForUpdate(ctx context.Context, tenantID, actionID uuid.UUID) (*model.Action, error)
	ListRunActions(ctx context.Context, tenantID, runID uuid.UUID) ([]model.Action, error)
	UpdateActionResolution(ctx context.Context, a *model.Action) error
	MarkActionExecution(ctx context.Context, tenantID, actionID uuid.UUID, state model.ExecutionState, execErr string, executedAt *time.Time) error

	// Side effects of executed actions
	InsertTask(ctx context.Context, t *model.Task) error
	InsertCalendarEvent(ctx context.Context, e *model.CalendarEvent) error
	InsertTimelineEvent(ctx context.Context, e *model.TimelineEvent) error

	// WithTx runs fn against a transactional view of the store, committing
	// on nil and rolling back on error or panic.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
