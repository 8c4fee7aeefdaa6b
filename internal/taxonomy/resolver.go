// Package taxonomy resolves the active extraction configuration for a
// matter's practice area, preferring a tenant override over the system
// default.
package taxonomy

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
)

// ErrNoPack is returned when no active pack exists for a practice area.
// Callers treat absence as "skip extraction", never as a fatal error.
var ErrNoPack = eris.New("taxonomy: no active pack")

// Repository loads fully-populated taxonomy packs. A nil tenantID selects
// the system default. Implementations return ErrNoPack (possibly wrapped)
// when no active pack matches.
type Repository interface {
	ActivePack(ctx context.Context, tenantID *uuid.UUID, practiceArea string) (*model.TaxonomyPack, error)
}

// Snapshot is a resolved pack with the lookup maps the pipeline stages use.
type Snapshot struct {
	Pack     *model.TaxonomyPack
	FieldMap map[string]*model.TaxonomyField       // "<categoryKey>:<fieldKey>" → field
	RuleMap  map[string]*model.ReconciliationRule  // fieldKey → rule
	typeMap  map[model.TemplateType]*model.TaxonomyPromptTemplate
}

// Template returns the pack's override for a template type, or nil when the
// built-in default applies.
func (s *Snapshot) Template(tt model.TemplateType) *model.TaxonomyPromptTemplate {
	if s == nil {
		return nil
	}
	return s.typeMap[tt]
}

// Field looks up a field definition by category and field key. Returns nil
// when the pack does not define it.
func (s *Snapshot) Field(categoryKey, fieldKey string) *model.TaxonomyField {
	if s == nil {
		return nil
	}
	return s.FieldMap[categoryKey+":"+fieldKey]
}

// Rule returns the reconciliation rule for a field key, or nil for the
// default strategy.
func (s *Snapshot) Rule(fieldKey string) *model.ReconciliationRule {
	if s == nil {
		return nil
	}
	return s.RuleMap[fieldKey]
}

// Resolver applies the tenant-override → system-default fallback chain.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver over a pack repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the active snapshot for a tenant and practice area. The
// tenant-specific pack wins; otherwise the system default; otherwise
// ErrNoPack.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, practiceArea string) (*Snapshot, error) {
	pack, err := r.repo.ActivePack(ctx, &tenantID, practiceArea)
	if err != nil {
		if !eris.Is(err, ErrNoPack) {
			return nil, eris.Wrap(err, "taxonomy: resolve tenant pack")
		}
		pack, err = r.repo.ActivePack(ctx, nil, practiceArea)
		if err != nil {
			if eris.Is(err, ErrNoPack) {
				zap.L().Debug("taxonomy: no active pack",
					zap.String("tenant_id", tenantID.String()),
					zap.String("practice_area", practiceArea),
				)
				return nil, ErrNoPack
			}
			return nil, eris.Wrap(err, "taxonomy: resolve system pack")
		}
	}

	return BuildSnapshot(pack), nil
}

// BuildSnapshot indexes a loaded pack into its lookup maps.
func BuildSnapshot(pack *model.TaxonomyPack) *Snapshot {
	snap := &Snapshot{
		Pack:     pack,
		FieldMap: make(map[string]*model.TaxonomyField),
		RuleMap:  make(map[string]*model.ReconciliationRule),
		typeMap:  make(map[model.TemplateType]*model.TaxonomyPromptTemplate),
	}

	for ci := range pack.Categories {
		cat := &pack.Categories[ci]
		for fi := range cat.Fields {
			field := &cat.Fields[fi]
			field.CategoryKey = cat.Key
			snap.FieldMap[field.QualifiedKey()] = field
		}
	}
	for i := range pack.Rules {
		rule := &pack.Rules[i]
		snap.RuleMap[rule.FieldKey] = rule
	}
	for i := range pack.Templates {
		tmpl := &pack.Templates[i]
		snap.typeMap[tmpl.TemplateType] = tmpl
	}

	return snap
}
