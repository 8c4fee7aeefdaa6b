package model

import (
	"fmt"

	"github.com/google/uuid"
)

// FieldDataType enumerates the value types a taxonomy field can extract.
type FieldDataType string

const (
	FieldTypeString   FieldDataType = "string"
	FieldTypeDate     FieldDataType = "date"
	FieldTypeNumber   FieldDataType = "number"
	FieldTypeCurrency FieldDataType = "currency"
	FieldTypeBoolean  FieldDataType = "boolean"
)

// TemplateType identifies which pipeline stage a prompt template overrides.
type TemplateType string

const (
	TemplateClassification TemplateType = "classification"
	TemplateExtraction     TemplateType = "extraction"
)

// ReconcileStrategy governs how conflicting values for the same field are merged.
type ReconcileStrategy string

const (
	ReconcileHighestConfidence ReconcileStrategy = "highest_confidence"
	ReconcileLongest           ReconcileStrategy = "longest"
	ReconcileNewest            ReconcileStrategy = "newest"
	ReconcileManualReview      ReconcileStrategy = "manual_review"
)

// TaxonomyPack is a versioned, practice-area-scoped extraction configuration.
// A nil TenantID marks a system default; a non-nil one marks a tenant override.
// At most one pack is active per (tenant-or-system, practice area).
type TaxonomyPack struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     *uuid.UUID `json:"tenantId,omitempty"`
	PracticeArea string     `json:"practiceArea"`
	Name         string     `json:"name"`
	Version      int        `json:"version"`
	Active       bool       `json:"active"`

	Categories    []TaxonomyCategory       `json:"categories,omitempty"`
	DocumentTypes []TaxonomyDocumentType   `json:"documentTypes,omitempty"`
	Templates     []TaxonomyPromptTemplate `json:"templates,omitempty"`
	Rules         []ReconciliationRule     `json:"rules,omitempty"`
	Triggers      []ActionTrigger          `json:"triggers,omitempty"`
}

// TaxonomyCategory groups related extraction fields.
type TaxonomyCategory struct {
	ID     uuid.UUID       `json:"id"`
	PackID uuid.UUID       `json:"packId"`
	Key    string          `json:"key"`
	Label  string          `json:"label"`
	Fields []TaxonomyField `json:"fields,omitempty"`
}

// TaxonomyField describes one extractable data point.
type TaxonomyField struct {
	ID                  uuid.UUID     `json:"id"`
	CategoryID          uuid.UUID     `json:"categoryId"`
	CategoryKey         string        `json:"categoryKey"`
	Key                 string        `json:"key"`
	Label               string        `json:"label"`
	DataType            FieldDataType `json:"dataType"`
	Examples            []string      `json:"examples,omitempty"`
	ConfidenceThreshold float64       `json:"confidenceThreshold"`
	RequiresHumanReview bool          `json:"requiresHumanReview"`
}

// QualifiedKey returns the "<categoryKey>:<fieldKey>" lookup key used by
// field maps and by the extraction prompt enumeration.
func (f TaxonomyField) QualifiedKey() string {
	return fmt.Sprintf("%s:%s", f.CategoryKey, f.Key)
}

// TaxonomyDocumentType is a classification label. ActivatesCategories lists
// the category keys whose fields are extracted when a document classifies
// as this type; empty means all categories.
type TaxonomyDocumentType struct {
	ID                  uuid.UUID `json:"id"`
	PackID              uuid.UUID `json:"packId"`
	Key                 string    `json:"key"`
	Label               string    `json:"label"`
	ClassificationHints string    `json:"classificationHints,omitempty"`
	ActivatesCategories []string  `json:"activatesCategories,omitempty"`
}

// ReconciliationRule is the per-field merge policy consulted before a
// field's final value is fixed.
type ReconciliationRule struct {
	ID       uuid.UUID         `json:"id"`
	PackID   uuid.UUID         `json:"packId"`
	FieldKey string            `json:"fieldKey"`
	Strategy ReconcileStrategy `json:"strategy"`
}

// TaxonomyPromptTemplate overrides the built-in prompt for one template type.
// Zero-valued Model/Temperature/MaxTokens fall back to pipeline defaults.
type TaxonomyPromptTemplate struct {
	ID                 uuid.UUID    `json:"id"`
	PackID             uuid.UUID    `json:"packId"`
	TemplateType       TemplateType `json:"templateType"`
	SystemPrompt       string       `json:"systemPrompt"`
	UserPromptTemplate string       `json:"userPromptTemplate"`
	Model              string       `json:"model,omitempty"`
	Temperature        *float64     `json:"temperature,omitempty"`
	MaxTokens          *int         `json:"maxTokens,omitempty"`
}

// ActionTrigger is a deterministic rule that proposes an action when a
// finding matches. An empty FieldKey matches any field; MinImpact is the
// least severe impact that still fires the trigger.
type ActionTrigger struct {
	ID         uuid.UUID  `json:"id"`
	PackID     uuid.UUID  `json:"packId"`
	ActionType ActionType `json:"actionType"`
	Title      string     `json:"title"`
	Priority   int        `json:"priority"`
	FieldKey   string     `json:"fieldKey,omitempty"`
	MinImpact  Impact     `json:"minImpact"`
}
