package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/google/uuid"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/taxonomy"
)

// PostgresStore implements Store over a DB. A pool-backed instance owns
// its connections; a tx-backed instance (from WithTx) shares its parent's.
type PostgresStore struct {
	db      DB
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of the pipeline worker.
var preparedStatements = map[string]string{
	"get_run": `SELECT id, tenant_id, matter_id, document_id, status, current_stage, stage_statuses,
	            document_type, findings_count, actions_count, triggered_by, failed_stage,
	            failure_reason, raw_error, created_at, updated_at, completed_at
	            FROM pipeline_runs WHERE tenant_id = $1 AND id = $2`,
	"insert_finding": `INSERT INTO findings
	            (id, tenant_id, matter_id, run_id, category_key, field_key, label, value,
	             source_quote, confidence, impact, status, created_at)
	            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"get_document": `SELECT id, tenant_id, matter_id, file_name, mime_type, extracted_text, created_at
	            FROM documents WHERE tenant_id = $1 AND id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{db: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromDB wraps an existing DB, primarily for tests with pgxmock.
func NewPostgresFromDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying database handle for subsystems with their own
// SQL, such as the job queue.
func (s *PostgresStore) DB() DB {
	return s.db
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS taxonomy_packs (
	id            UUID PRIMARY KEY,
	tenant_id     UUID,
	practice_area TEXT NOT NULL,
	name          TEXT NOT NULL,
	version       INTEGER NOT NULL DEFAULT 1,
	active        BOOLEAN NOT NULL DEFAULT true,
	definition    JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_taxonomy_active_tenant
	ON taxonomy_packs(tenant_id, practice_area) WHERE active AND tenant_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_taxonomy_active_system
	ON taxonomy_packs(practice_area) WHERE active AND tenant_id IS NULL;

CREATE TABLE IF NOT EXISTS matters (
	id            UUID PRIMARY KEY,
	tenant_id     UUID NOT NULL,
	practice_area TEXT NOT NULL,
	title         TEXT NOT NULL,
	risk_score    INTEGER NOT NULL DEFAULT 0,
	risk_factors  JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_matters_tenant ON matters(tenant_id);

CREATE TABLE IF NOT EXISTS documents (
	id             UUID PRIMARY KEY,
	tenant_id      UUID NOT NULL,
	matter_id      UUID NOT NULL REFERENCES matters(id),
	file_name      TEXT NOT NULL,
	mime_type      TEXT NOT NULL DEFAULT '',
	extracted_text TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_matter ON documents(tenant_id, matter_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id             UUID PRIMARY KEY,
	tenant_id      UUID NOT NULL,
	matter_id      UUID NOT NULL REFERENCES matters(id),
	document_id    UUID NOT NULL REFERENCES documents(id),
	status         TEXT NOT NULL DEFAULT 'queued',
	current_stage  TEXT NOT NULL DEFAULT '',
	stage_statuses JSONB NOT NULL DEFAULT '{}',
	document_type  TEXT NOT NULL DEFAULT '',
	findings_count INTEGER NOT NULL DEFAULT 0,
	actions_count  INTEGER NOT NULL DEFAULT 0,
	triggered_by   UUID,
	failed_stage   TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	raw_error      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_document ON pipeline_runs(tenant_id, document_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);

CREATE TABLE IF NOT EXISTS findings (
	id           UUID PRIMARY KEY,
	tenant_id    UUID NOT NULL,
	matter_id    UUID NOT NULL REFERENCES matters(id),
	run_id       UUID NOT NULL REFERENCES pipeline_runs(id),
	category_key TEXT NOT NULL,
	field_key    TEXT NOT NULL,
	label        TEXT NOT NULL,
	value        TEXT NOT NULL,
	source_quote TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL,
	impact       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_findings_matter ON findings(tenant_id, matter_id);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);

CREATE TABLE IF NOT EXISTS entity_corrections (
	id              UUID PRIMARY KEY,
	tenant_id       UUID NOT NULL,
	finding_id      UUID NOT NULL REFERENCES findings(id),
	field_key       TEXT NOT NULL,
	original_value  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	scope           TEXT NOT NULL,
	created_by      UUID,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_corrections_field ON entity_corrections(tenant_id, field_key);

CREATE TABLE IF NOT EXISTS actions (
	id               UUID PRIMARY KEY,
	tenant_id        UUID NOT NULL,
	matter_id        UUID NOT NULL REFERENCES matters(id),
	run_id           UUID NOT NULL REFERENCES pipeline_runs(id),
	action_type      TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	priority         INTEGER NOT NULL DEFAULT 2,
	is_deterministic BOOLEAN NOT NULL DEFAULT false,
	status           TEXT NOT NULL DEFAULT 'pending',
	exec_state       TEXT NOT NULL DEFAULT 'not_executed',
	exec_error       TEXT NOT NULL DEFAULT '',
	payload          JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at      TIMESTAMPTZ,
	executed_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_actions_run ON actions(tenant_id, run_id);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);

CREATE TABLE IF NOT EXISTS tasks (
	id          UUID PRIMARY KEY,
	tenant_id   UUID NOT NULL,
	matter_id   UUID NOT NULL REFERENCES matters(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority    INTEGER NOT NULL DEFAULT 2,
	due_at      TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calendar_events (
	id         UUID PRIMARY KEY,
	tenant_id  UUID NOT NULL,
	matter_id  UUID NOT NULL REFERENCES matters(id),
	title      TEXT NOT NULL,
	start_at   TIMESTAMPTZ NOT NULL,
	end_at     TIMESTAMPTZ,
	all_day    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS timeline_events (
	id         UUID PRIMARY KEY,
	tenant_id  UUID NOT NULL,
	matter_id  UUID NOT NULL REFERENCES matters(id),
	event_type TEXT NOT NULL,
	summary    TEXT NOT NULL,
	ref_id     UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_timeline_matter ON timeline_events(tenant_id, matter_id, created_at DESC);

CREATE TABLE IF NOT EXISTS jobs (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	tenant_id   UUID NOT NULL,
	payload     JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	attempts    INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	run_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	locked_at   TIMESTAMPTZ,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_ready ON jobs(status, run_at) WHERE status = 'queued';
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn against a transactional store. The callback's store shares
// this store's queries but every write lands in one transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &PostgresStore{db: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// packDefinition is the JSONB shape of a pack's nested content. Packs are
// read whole on every run, so one document per pack beats five joins.
type packDefinition struct {
	Categories    []model.TaxonomyCategory       `json:"categories,omitempty"`
	DocumentTypes []model.TaxonomyDocumentType   `json:"documentTypes,omitempty"`
	Templates     []model.TaxonomyPromptTemplate `json:"templates,omitempty"`
	Rules         []model.ReconciliationRule     `json:"rules,omitempty"`
	Triggers      []model.ActionTrigger          `json:"triggers,omitempty"`
}

func (s *PostgresStore) ActivePack(ctx context.Context, tenantID *uuid.UUID, practiceArea string) (*model.TaxonomyPack, error) {
	var (
		pack    model.TaxonomyPack
		defJSON []byte
	)
	var row pgx.Row
	if tenantID != nil {
		row = s.db.QueryRow(ctx,
			`SELECT id, tenant_id, practice_area, name, version, active, definition
			 FROM taxonomy_packs
			 WHERE tenant_id = $1 AND practice_area = $2 AND active
			 ORDER BY version DESC LIMIT 1`,
			*tenantID, practiceArea,
		)
	} else {
		row = s.db.QueryRow(ctx,
			`SELECT id, tenant_id, practice_area, name, version, active, definition
			 FROM taxonomy_packs
			 WHERE tenant_id IS NULL AND practice_area = $1 AND active
			 ORDER BY version DESC LIMIT 1`,
			practiceArea,
		)
	}

	err := row.Scan(&pack.ID, &pack.TenantID, &pack.PracticeArea, &pack.Name,
		&pack.Version, &pack.Active, &defJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, taxonomy.ErrNoPack
		}
		return nil, eris.Wrapf(err, "postgres: active pack %s", practiceArea)
	}

	var def packDefinition
	if err := json.Unmarshal(defJSON, &def); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pack definition")
	}
	pack.Categories = def.Categories
	pack.DocumentTypes = def.DocumentTypes
	pack.Templates = def.Templates
	pack.Rules = def.Rules
	pack.Triggers = def.Triggers
	return &pack, nil
}

// UpsertSystemPack installs a system-default pack, deactivating any prior
// active pack for the same practice area.
func (s *PostgresStore) UpsertSystemPack(ctx context.Context, pack *model.TaxonomyPack) error {
	defJSON, err := json.Marshal(packDefinition{
		Categories:    pack.Categories,
		DocumentTypes: pack.DocumentTypes,
		Templates:     pack.Templates,
		Rules:         pack.Rules,
		Triggers:      pack.Triggers,
	})
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pack definition")
	}

	return s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		pg := tx.(*PostgresStore)
		if _, err := pg.db.Exec(ctx,
			`UPDATE taxonomy_packs SET active = false, updated_at = now()
			 WHERE tenant_id IS NULL AND practice_area = $1 AND active`,
			pack.PracticeArea,
		); err != nil {
			return eris.Wrap(err, "postgres: deactivate prior pack")
		}
		_, err := pg.db.Exec(ctx,
			`INSERT INTO taxonomy_packs (id, tenant_id, practice_area, name, version, active, definition)
			 VALUES ($1, NULL, $2, $3, $4, true, $5)`,
			pack.ID, pack.PracticeArea, pack.Name, pack.Version, defJSON,
		)
		return eris.Wrap(err, "postgres: insert pack")
	})
}

func (s *PostgresStore) GetMatter(ctx context.Context, tenantID, matterID uuid.UUID) (*model.Matter, error) {
	var m model.Matter
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, practice_area, title, risk_score
		 FROM matters WHERE tenant_id = $1 AND id = $2`,
		tenantID, matterID,
	).Scan(&m.ID, &m.TenantID, &m.PracticeArea, &m.Title, &m.RiskScore)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get matter %s", matterID)
	}
	return &m, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, tenantID, documentID uuid.UUID) (*model.Document, error) {
	var d model.Document
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, matter_id, file_name, mime_type, extracted_text, created_at
		 FROM documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, documentID,
	).Scan(&d.ID, &d.TenantID, &d.MatterID, &d.FileName, &d.MimeType, &d.ExtractedText, &d.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", documentID)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateMatterRisk(ctx context.Context, tenantID, matterID uuid.UUID, score int, factors []byte) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE matters SET risk_score = $1, risk_factors = $2, updated_at = now()
		 WHERE tenant_id = $3 AND id = $4`,
		score, factors, tenantID, matterID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update matter risk %s", matterID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("matter not found: %s", matterID)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	stagesJSON, err := json.Marshal(run.StageStatuses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage statuses")
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO pipeline_runs
		 (id, tenant_id, matter_id, document_id, status, current_stage, stage_statuses,
		  triggered_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.TenantID, run.MatterID, run.DocumentID, string(run.Status),
		string(run.CurrentStage), stagesJSON, run.TriggeredBy, run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) GetRun(ctx context.Context, tenantID, runID uuid.UUID) (*model.PipelineRun, error) {
	var (
		r          model.PipelineRun
		stagesJSON []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, matter_id, document_id, status, current_stage, stage_statuses,
		        document_type, findings_count, actions_count, triggered_by, failed_stage,
		        failure_reason, raw_error, created_at, updated_at, completed_at
		 FROM pipeline_runs WHERE tenant_id = $1 AND id = $2`,
		tenantID, runID,
	).Scan(&r.ID, &r.TenantID, &r.MatterID, &r.DocumentID, &r.Status, &r.CurrentStage,
		&stagesJSON, &r.DocumentType, &r.FindingsCount, &r.ActionsCount, &r.TriggeredBy,
		&r.FailedStage, &r.FailureReason, &r.RawError, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err := json.Unmarshal(stagesJSON, &r.StageStatuses); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal stage statuses")
	}
	return &r, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *model.PipelineRun) error {
	stagesJSON, err := json.Marshal(run.StageStatuses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage statuses")
	}
	run.UpdatedAt = time.Now().UTC()

	tag, err := s.db.Exec(ctx,
		`UPDATE pipeline_runs SET
		   status = $1, current_stage = $2, stage_statuses = $3, document_type = $4,
		   findings_count = $5, actions_count = $6, failed_stage = $7, failure_reason = $8,
		   raw_error = $9, updated_at = $10, completed_at = $11
		 WHERE tenant_id = $12 AND id = $13`,
		string(run.Status), string(run.CurrentStage), stagesJSON, run.DocumentType,
		run.FindingsCount, run.ActionsCount, string(run.FailedStage), run.FailureReason,
		run.RawError, run.UpdatedAt, run.CompletedAt, run.TenantID, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) InsertFindings(ctx context.Context, findings []model.Finding) error {
	for _, f := range findings {
		_, err := s.db.Exec(ctx,
			`INSERT INTO findings
			 (id, tenant_id, matter_id, run_id, category_key, field_key, label, value,
			  source_quote, confidence, impact, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			f.ID, f.TenantID, f.MatterID, f.RunID, f.CategoryKey, f.FieldKey, f.Label,
			f.Value, f.SourceQuote, f.Confidence, string(f.Impact), string(f.Status), f.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert finding %s", f.FieldKey)
		}
	}
	return nil
}

func (s *PostgresStore) GetFinding(ctx context.Context, tenantID, findingID uuid.UUID) (*model.Finding, error) {
	var f model.Finding
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, matter_id, run_id, category_key, field_key, label, value,
		        source_quote, confidence, impact, status, created_at, resolved_at
		 FROM findings WHERE tenant_id = $1 AND id = $2`,
		tenantID, findingID,
	).Scan(&f.ID, &f.TenantID, &f.MatterID, &f.RunID, &f.CategoryKey, &f.FieldKey,
		&f.Label, &f.Value, &f.SourceQuote, &f.Confidence, &f.Impact, &f.Status,
		&f.CreatedAt, &f.ResolvedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get finding %s", findingID)
	}
	return &f, nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, tenantID uuid.UUID, filter FindingFilter) ([]model.Finding, error) {
	query := `SELECT id, tenant_id, matter_id, run_id, category_key, field_key, label, value,
	                 source_quote, confidence, impact, status, created_at, resolved_at
	          FROM findings WHERE tenant_id = $1 AND matter_id = $2`
	args := []any{tenantID, filter.MatterID}

	if filter.RunID != nil {
		args = append(args, *filter.RunID)
		query += ` AND run_id = $3`
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		if err := rows.Scan(&f.ID, &f.TenantID, &f.MatterID, &f.RunID, &f.CategoryKey,
			&f.FieldKey, &f.Label, &f.Value, &f.SourceQuote, &f.Confidence, &f.Impact,
			&f.Status, &f.CreatedAt, &f.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func (s *PostgresStore) UpdateFindingResolution(ctx context.Context, f *model.Finding) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE findings SET status = $1, value = $2, resolved_at = $3
		 WHERE tenant_id = $4 AND id = $5`,
		string(f.Status), f.Value, f.ResolvedAt, f.TenantID, f.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update finding %s", f.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("finding not found: %s", f.ID)
	}
	return nil
}

func (s *PostgresStore) InsertCorrection(ctx context.Context, c *model.EntityCorrection) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO entity_corrections
		 (id, tenant_id, finding_id, field_key, original_value, corrected_value, scope, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TenantID, c.FindingID, c.FieldKey, c.OriginalValue, c.CorrectedValue,
		string(c.Scope), c.CreatedBy, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert correction")
}

func (s *PostgresStore) ListCorrections(ctx context.Context, tenantID uuid.UUID, filter CorrectionFilter) ([]model.EntityCorrection, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.tenant_id, c.finding_id, c.field_key, c.original_value,
		        c.corrected_value, c.scope, c.created_by, c.created_at
		 FROM entity_corrections c
		 JOIN findings f ON f.id = c.finding_id
		 WHERE c.tenant_id = $1 AND c.field_key = $2
		   AND (c.scope = 'firm' OR (c.scope = 'matter' AND f.matter_id = $3))
		 ORDER BY c.created_at DESC`,
		tenantID, filter.FieldKey, filter.MatterID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []model.EntityCorrection
	for rows.Next() {
		var c model.EntityCorrection
		if err := rows.Scan(&c.ID, &c.TenantID, &c.FindingID, &c.FieldKey, &c.OriginalValue,
			&c.CorrectedValue, &c.Scope, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

func (s *PostgresStore) InsertActions(ctx context.Context, actions []model.Action) error {
	for _, a := range actions {
		_, err := s.db.Exec(ctx,
			`INSERT INTO actions
			 (id, tenant_id, matter_id, run_id, action_type, title, description, priority,
			  is_deterministic, status, exec_state, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, a.TenantID, a.MatterID, a.RunID, string(a.ActionType), a.Title,
			a.Description, a.Priority, a.IsDeterministic, string(a.Status),
			string(a.ExecState), a.Payload, a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert action %s", a.Title)
		}
	}
	return nil
}

func (s *PostgresStore) GetAction(ctx context.Context, tenantID, actionID uuid.UUID) (*model.Action, error) {
	return s.getAction(ctx, tenantID, actionID, "")
}

// GetActionForUpdate locks the action row until the enclosing transaction
// ends, so two concurrent execution attempts observe each other's writes.
func (s *PostgresStore) GetActionForUpdate(ctx context.Context, tenantID, actionID uuid.UUID) (*model.Action, error) {
	return s.getAction(ctx, tenantID, actionID, " FOR UPDATE")
}

func (s *PostgresStore) getAction(ctx context.Context, tenantID, actionID uuid.UUID, lock string) (*model.Action, error) {
	var a model.Action
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, matter_id, run_id, action_type, title, description, priority,
		        is_deterministic, status, exec_state, exec_error, payload, created_at,
		        resolved_at, executed_at
		 FROM actions WHERE tenant_id = $1 AND id = $2`+lock,
		tenantID, actionID,
	).Scan(&a.ID, &a.TenantID, &a.MatterID, &a.RunID, &a.ActionType, &a.Title,
		&a.Description, &a.Priority, &a.IsDeterministic, &a.Status, &a.ExecState,
		&a.ExecError, &a.Payload, &a.CreatedAt, &a.ResolvedAt, &a.ExecutedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get action %s", actionID)
	}
	return &a, nil
}

func (s *PostgresStore) ListRunActions(ctx context.Context, tenantID, runID uuid.UUID) ([]model.Action, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, matter_id, run_id, action_type, title, description, priority,
		        is_deterministic, status, exec_state, exec_error, payload, created_at,
		        resolved_at, executed_at
		 FROM actions WHERE tenant_id = $1 AND run_id = $2
		 ORDER BY priority ASC, created_at ASC`,
		tenantID, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run actions")
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		var a model.Action
		if err := rows.Scan(&a.ID, &a.TenantID, &a.MatterID, &a.RunID, &a.ActionType,
			&a.Title, &a.Description, &a.Priority, &a.IsDeterministic, &a.Status,
			&a.ExecState, &a.ExecError, &a.Payload, &a.CreatedAt, &a.ResolvedAt,
			&a.ExecutedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list run actions iterate")
}

func (s *PostgresStore) UpdateActionResolution(ctx context.Context, a *model.Action) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE actions SET status = $1, resolved_at = $2
		 WHERE tenant_id = $3 AND id = $4`,
		string(a.Status), a.ResolvedAt, a.TenantID, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update action %s", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("action not found: %s", a.ID)
	}
	return nil
}

func (s *PostgresStore) MarkActionExecution(ctx context.Context, tenantID, actionID uuid.UUID, state model.ExecutionState, execErr string, executedAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE actions SET exec_state = $1, exec_error = $2, executed_at = $3
		 WHERE tenant_id = $4 AND id = $5`,
		string(state), execErr, executedAt, tenantID, actionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark action execution %s", actionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("action not found: %s", actionID)
	}
	return nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, t *model.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, tenant_id, matter_id, title, description, priority, due_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.TenantID, t.MatterID, t.Title, t.Description, t.Priority, t.DueAt, t.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert task")
}

func (s *PostgresStore) InsertCalendarEvent(ctx context.Context, e *model.CalendarEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO calendar_events (id, tenant_id, matter_id, title, start_at, end_at, all_day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, e.MatterID, e.Title, e.StartAt, e.EndAt, e.AllDay, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert calendar event")
}

func (s *PostgresStore) InsertTimelineEvent(ctx context.Context, e *model.TimelineEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO timeline_events (id, tenant_id, matter_id, event_type, summary, ref_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TenantID, e.MatterID, e.EventType, e.Summary, e.RefID, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert timeline event")
}
