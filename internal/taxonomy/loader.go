package taxonomy

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/lexhaven/docintel/internal/model"
)

// packFile is the YAML seed schema for a taxonomy pack. Seed files define
// system-default packs; the import command upserts them into the store.
type packFile struct {
	PracticeArea string `yaml:"practice_area"`
	Name         string `yaml:"name"`
	Version      int    `yaml:"version"`

	Categories []struct {
		Key    string `yaml:"key"`
		Label  string `yaml:"label"`
		Fields []struct {
			Key                 string   `yaml:"key"`
			Label               string   `yaml:"label"`
			DataType            string   `yaml:"data_type"`
			Examples            []string `yaml:"examples"`
			ConfidenceThreshold float64  `yaml:"confidence_threshold"`
			RequiresHumanReview bool     `yaml:"requires_human_review"`
		} `yaml:"fields"`
	} `yaml:"categories"`

	DocumentTypes []struct {
		Key                 string   `yaml:"key"`
		Label               string   `yaml:"label"`
		ClassificationHints string   `yaml:"classification_hints"`
		ActivatesCategories []string `yaml:"activates_categories"`
	} `yaml:"document_types"`

	Rules []struct {
		FieldKey string `yaml:"field_key"`
		Strategy string `yaml:"strategy"`
	} `yaml:"reconciliation_rules"`

	Templates []struct {
		TemplateType       string   `yaml:"template_type"`
		SystemPrompt       string   `yaml:"system_prompt"`
		UserPromptTemplate string   `yaml:"user_prompt_template"`
		Model              string   `yaml:"model"`
		Temperature        *float64 `yaml:"temperature"`
		MaxTokens          *int     `yaml:"max_tokens"`
	} `yaml:"prompt_templates"`

	Triggers []struct {
		ActionType string `yaml:"action_type"`
		Title      string `yaml:"title"`
		Priority   int    `yaml:"priority"`
		FieldKey   string `yaml:"field_key"`
		MinImpact  string `yaml:"min_impact"`
	} `yaml:"action_triggers"`
}

// LoadPackFile parses a YAML seed file into a system-default pack. IDs are
// generated fresh; the store's upsert replaces any prior version for the
// same practice area.
func LoadPackFile(path string) (*model.TaxonomyPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read pack file %s", path)
	}
	return ParsePack(data)
}

// ParsePack parses YAML pack bytes and validates the minimum shape.
func ParsePack(data []byte) (*model.TaxonomyPack, error) {
	var pf packFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse pack yaml")
	}

	if pf.PracticeArea == "" {
		return nil, eris.New("taxonomy: pack file missing practice_area")
	}
	if pf.Version <= 0 {
		pf.Version = 1
	}

	pack := &model.TaxonomyPack{
		ID:           uuid.New(),
		PracticeArea: pf.PracticeArea,
		Name:         pf.Name,
		Version:      pf.Version,
		Active:       true,
	}

	seenCategories := make(map[string]bool)
	for _, c := range pf.Categories {
		if c.Key == "" {
			return nil, eris.New("taxonomy: category missing key")
		}
		if seenCategories[c.Key] {
			return nil, eris.Errorf("taxonomy: duplicate category key %q", c.Key)
		}
		seenCategories[c.Key] = true

		cat := model.TaxonomyCategory{
			ID:     uuid.New(),
			PackID: pack.ID,
			Key:    c.Key,
			Label:  c.Label,
		}
		seenFields := make(map[string]bool)
		for _, f := range c.Fields {
			if f.Key == "" {
				return nil, eris.Errorf("taxonomy: field in category %q missing key", c.Key)
			}
			if seenFields[f.Key] {
				return nil, eris.Errorf("taxonomy: duplicate field key %q in category %q", f.Key, c.Key)
			}
			seenFields[f.Key] = true

			dataType := model.FieldDataType(f.DataType)
			if dataType == "" {
				dataType = model.FieldTypeString
			}
			threshold := f.ConfidenceThreshold
			if threshold <= 0 {
				threshold = 0.7
			}
			cat.Fields = append(cat.Fields, model.TaxonomyField{
				ID:                  uuid.New(),
				CategoryID:          cat.ID,
				CategoryKey:         cat.Key,
				Key:                 f.Key,
				Label:               f.Label,
				DataType:            dataType,
				Examples:            f.Examples,
				ConfidenceThreshold: threshold,
				RequiresHumanReview: f.RequiresHumanReview,
			})
		}
		pack.Categories = append(pack.Categories, cat)
	}

	for _, dt := range pf.DocumentTypes {
		if dt.Key == "" {
			return nil, eris.New("taxonomy: document type missing key")
		}
		for _, ck := range dt.ActivatesCategories {
			if !seenCategories[ck] {
				return nil, eris.Errorf("taxonomy: document type %q activates unknown category %q", dt.Key, ck)
			}
		}
		pack.DocumentTypes = append(pack.DocumentTypes, model.TaxonomyDocumentType{
			ID:                  uuid.New(),
			PackID:              pack.ID,
			Key:                 dt.Key,
			Label:               dt.Label,
			ClassificationHints: dt.ClassificationHints,
			ActivatesCategories: dt.ActivatesCategories,
		})
	}

	for _, r := range pf.Rules {
		strategy := model.ReconcileStrategy(r.Strategy)
		switch strategy {
		case model.ReconcileHighestConfidence, model.ReconcileLongest,
			model.ReconcileNewest, model.ReconcileManualReview:
		case "":
			strategy = model.ReconcileHighestConfidence
		default:
			return nil, eris.Errorf("taxonomy: unknown reconciliation strategy %q", r.Strategy)
		}
		pack.Rules = append(pack.Rules, model.ReconciliationRule{
			ID:       uuid.New(),
			PackID:   pack.ID,
			FieldKey: r.FieldKey,
			Strategy: strategy,
		})
	}

	for _, tm := range pf.Templates {
		tt := model.TemplateType(tm.TemplateType)
		if tt != model.TemplateClassification && tt != model.TemplateExtraction {
			return nil, eris.Errorf("taxonomy: unknown template type %q", tm.TemplateType)
		}
		pack.Templates = append(pack.Templates, model.TaxonomyPromptTemplate{
			ID:                 uuid.New(),
			PackID:             pack.ID,
			TemplateType:       tt,
			SystemPrompt:       tm.SystemPrompt,
			UserPromptTemplate: tm.UserPromptTemplate,
			Model:              tm.Model,
			Temperature:        tm.Temperature,
			MaxTokens:          tm.MaxTokens,
		})
	}

	for _, tr := range pf.Triggers {
		minImpact := model.Impact(tr.MinImpact)
		if minImpact == "" {
			minImpact = model.ImpactHigh
		}
		if minImpact.Rank() < 0 {
			return nil, eris.Errorf("taxonomy: unknown min_impact %q", tr.MinImpact)
		}
		pack.Triggers = append(pack.Triggers, model.ActionTrigger{
			ID:         uuid.New(),
			PackID:     pack.ID,
			ActionType: model.ActionType(tr.ActionType),
			Title:      tr.Title,
			Priority:   tr.Priority,
			FieldKey:   tr.FieldKey,
			MinImpact:  minImpact,
		})
	}

	return pack, nil
}
