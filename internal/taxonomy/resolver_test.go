package taxonomy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/docintel/internal/model"
)

// fakeRepo returns canned packs keyed by tenant presence.
type fakeRepo struct {
	tenantPack *model.TaxonomyPack
	systemPack *model.TaxonomyPack
	tenantErr  error
	systemErr  error
}

func (r *fakeRepo) ActivePack(_ context.Context, tenantID *uuid.UUID, _ string) (*model.TaxonomyPack, error) {
	if tenantID != nil {
		if r.tenantErr != nil {
			return nil, r.tenantErr
		}
		if r.tenantPack == nil {
			return nil, ErrNoPack
		}
		return r.tenantPack, nil
	}
	if r.systemErr != nil {
		return nil, r.systemErr
	}
	if r.systemPack == nil {
		return nil, ErrNoPack
	}
	return r.systemPack, nil
}

func samplePack(tenantID *uuid.UUID) *model.TaxonomyPack {
	temp := 0.2
	return &model.TaxonomyPack{
		ID:           uuid.New(),
		TenantID:     tenantID,
		PracticeArea: "personal_injury",
		Categories: []model.TaxonomyCategory{{
			Key: "parties",
			Fields: []model.TaxonomyField{
				{Key: "claimant_name", Label: "Claimant Name", ConfidenceThreshold: 0.7},
			},
		}},
		Rules: []model.ReconciliationRule{
			{FieldKey: "claimant_name", Strategy: model.ReconcileManualReview},
		},
		Templates: []model.TaxonomyPromptTemplate{
			{TemplateType: model.TemplateExtraction, SystemPrompt: "custom", Temperature: &temp},
		},
	}
}

func TestResolve_TenantOverrideWins(t *testing.T) {
	tenantID := uuid.New()
	tenantPack := samplePack(&tenantID)
	repo := &fakeRepo{tenantPack: tenantPack, systemPack: samplePack(nil)}

	snap, err := NewResolver(repo).Resolve(context.Background(), tenantID, "personal_injury")
	require.NoError(t, err)
	assert.Equal(t, tenantPack.ID, snap.Pack.ID)
}

func TestResolve_FallsBackToSystemDefault(t *testing.T) {
	systemPack := samplePack(nil)
	repo := &fakeRepo{systemPack: systemPack}

	snap, err := NewResolver(repo).Resolve(context.Background(), uuid.New(), "personal_injury")
	require.NoError(t, err)
	assert.Equal(t, systemPack.ID, snap.Pack.ID)
}

func TestResolve_NoPackAnywhere(t *testing.T) {
	repo := &fakeRepo{}
	_, err := NewResolver(repo).Resolve(context.Background(), uuid.New(), "personal_injury")
	assert.True(t, eris.Is(err, ErrNoPack))
}

func TestResolve_RepoErrorPropagates(t *testing.T) {
	repo := &fakeRepo{tenantErr: eris.New("connection refused")}
	_, err := NewResolver(repo).Resolve(context.Background(), uuid.New(), "personal_injury")
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrNoPack))
}

func TestBuildSnapshot_LookupMaps(t *testing.T) {
	snap := BuildSnapshot(samplePack(nil))

	field := snap.Field("parties", "claimant_name")
	require.NotNil(t, field)
	assert.Equal(t, "parties", field.CategoryKey)
	assert.Equal(t, "parties:claimant_name", field.QualifiedKey())

	rule := snap.Rule("claimant_name")
	require.NotNil(t, rule)
	assert.Equal(t, model.ReconcileManualReview, rule.Strategy)

	tmpl := snap.Template(model.TemplateExtraction)
	require.NotNil(t, tmpl)
	assert.Equal(t, "custom", tmpl.SystemPrompt)
	assert.Nil(t, snap.Template(model.TemplateClassification))
}

func TestSnapshot_NilSafe(t *testing.T) {
	var snap *Snapshot
	assert.Nil(t, snap.Field("a", "b"))
	assert.Nil(t, snap.Rule("a"))
	assert.Nil(t, snap.Template(model.TemplateExtraction))
}
