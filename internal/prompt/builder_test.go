package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/lexhaven/docintel/internal/model"
)

func TestBuildClassification_Defaults(t *testing.T) {
	p := BuildClassification(ClassificationInput{
		DocumentTypes: []model.TaxonomyDocumentType{
			{Key: "demand_letter", Label: "Demand Letter", ClassificationHints: "mentions settlement demands"},
			{Key: "police_report", Label: "Police Report"},
		},
		TextSample: "Dear Sir, we demand payment of...",
		MimeType:   "application/pdf",
		FileName:   "letter.pdf",
	})

	assert.Equal(t, DefaultTemperature, p.Temperature)
	assert.Equal(t, DefaultClassifyMaxTokens, p.MaxTokens)
	assert.Empty(t, p.Model)
	assert.Contains(t, p.User, `"demand_letter"`)
	assert.Contains(t, p.User, "mentions settlement demands")
	assert.Contains(t, p.User, "letter.pdf")
	assert.Contains(t, p.System, "documentType")
}

func TestBuildClassification_TruncatesSample(t *testing.T) {
	long := strings.Repeat("a", 5000)
	p := BuildClassification(ClassificationInput{
		DocumentTypes: []model.TaxonomyDocumentType{{Key: "other", Label: "Other"}},
		TextSample:    long,
	})
	assert.Less(t, len(p.User), 3000)
}

func TestBuildClassification_SampleStaysValidUTF8(t *testing.T) {
	// Three-byte runes so the sample limit falls inside a character.
	p := BuildClassification(ClassificationInput{
		DocumentTypes: []model.TaxonomyDocumentType{{Key: "other", Label: "Other"}},
		TextSample:    strings.Repeat("€", 1000),
	})
	assert.True(t, utf8.ValidString(p.User))
}

func TestTruncate_CutsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("€", 700)
	got := truncate(s, 2000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 1998, len(got))

	// ASCII and short inputs pass through untouched.
	assert.Equal(t, "abc", truncate("abc", 2000))
	assert.Equal(t, "ab", truncate("abcd", 2))
}

func TestBuildClassification_TemplateOverride(t *testing.T) {
	temp := 0.5
	maxTokens := 512
	p := BuildClassification(ClassificationInput{
		DocumentTypes: []model.TaxonomyDocumentType{{Key: "contract", Label: "Contract"}},
		TextSample:    "body text",
		FileName:      "contract.pdf",
		Template: &model.TaxonomyPromptTemplate{
			SystemPrompt:       "Custom system prompt",
			UserPromptTemplate: "Types: {{document_types}} File: {{file_name}} Text: {{text}}",
			Model:              "claude-sonnet-4-5-20250929",
			Temperature:        &temp,
			MaxTokens:          &maxTokens,
		},
	})

	assert.Equal(t, "Custom system prompt", p.System)
	assert.Equal(t, "claude-sonnet-4-5-20250929", p.Model)
	assert.InDelta(t, 0.5, p.Temperature, 0.001)
	assert.Equal(t, 512, p.MaxTokens)
	assert.Contains(t, p.User, "contract.pdf")
	assert.Contains(t, p.User, "body text")
	assert.NotContains(t, p.User, "{{file_name}}")
}

func TestBuildExtraction_Defaults(t *testing.T) {
	p := BuildExtraction(ExtractionInput{
		Categories: []model.TaxonomyCategory{{
			Key:   "parties",
			Label: "Parties",
			Fields: []model.TaxonomyField{{
				Key:      "claimant_name",
				Label:    "Claimant Name",
				DataType: model.FieldTypeString,
				Examples: []string{"John Smith"},
			}},
		}},
		Chunk:        "The claimant John Smith alleges...",
		ChunkIndex:   0,
		ChunkTotal:   3,
		DocumentType: "demand_letter",
	})

	assert.Equal(t, DefaultExtractMaxTokens, p.MaxTokens)
	assert.Contains(t, p.User, "parties.claimant_name")
	assert.Contains(t, p.User, "Chunk 1 of 3")
	assert.Contains(t, p.User, "examples: John Smith")
	assert.Contains(t, p.System, "sourceQuote")
}

func TestBuildExtraction_TemplatePlaceholders(t *testing.T) {
	p := BuildExtraction(ExtractionInput{
		Categories:   []model.TaxonomyCategory{{Key: "dates", Fields: []model.TaxonomyField{{Key: "incident_date", Label: "Incident Date", DataType: model.FieldTypeDate}}}},
		Chunk:        "chunk body",
		ChunkIndex:   1,
		ChunkTotal:   2,
		DocumentType: "police_report",
		Template: &model.TaxonomyPromptTemplate{
			UserPromptTemplate: "{{document_type}} chunk {{chunk_index}}/{{chunk_total}}: {{chunk}}",
		},
	})
	assert.Equal(t, "police_report chunk 2/2: chunk body", p.User)
}

func TestSubstitute_UnknownPlaceholderSurvives(t *testing.T) {
	out := substitute("a {{known}} b {{unknown}}", map[string]string{"known": "X"})
	assert.Equal(t, "a X b {{unknown}}", out)
}
