// Package prompt builds classification and extraction prompts from taxonomy
// data. Both builders are pure: no I/O, no side effects.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lexhaven/docintel/internal/model"
)

// Defaults applied when the pack carries no template override.
const (
	DefaultTemperature        = 0.1
	DefaultClassifyMaxTokens  = 256
	DefaultExtractMaxTokens   = 2048
	classificationSampleLimit = 2000
)

const classifySystemPrompt = `You are a legal document classifier. Classify the document into exactly one of the listed document type keys. Respond with a valid JSON object and nothing else: {"documentType": "<key>", "confidence": <0.0-1.0>}`

const extractSystemPrompt = `You are a legal document analyst. Extract only fields with direct textual evidence in the provided text; do not guess or infer values that are not stated. Respond with a valid JSON array and nothing else: [{"categoryKey": "...", "fieldKey": "...", "value": "...", "sourceQuote": "...", "confidence": <0.0-1.0>}]. Return [] if nothing is found.`

// Prompt is a fully-resolved prompt ready for the inference client. An empty
// Model defers to the caller's configured default.
type Prompt struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ClassificationInput carries everything needed to build a classification
// prompt for one document.
type ClassificationInput struct {
	DocumentTypes []model.TaxonomyDocumentType
	TextSample    string
	MimeType      string
	FileName      string
	Template      *model.TaxonomyPromptTemplate
}

// BuildClassification produces the document-type classification prompt,
// substituting the pack's custom template when one exists.
func BuildClassification(in ClassificationInput) Prompt {
	sample := truncate(in.TextSample, classificationSampleLimit)

	var types strings.Builder
	for _, dt := range in.DocumentTypes {
		types.WriteString(fmt.Sprintf("- %q (%s)", dt.Key, dt.Label))
		if dt.ClassificationHints != "" {
			types.WriteString(": " + dt.ClassificationHints)
		}
		types.WriteString("\n")
	}

	p := Prompt{
		System:      classifySystemPrompt,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultClassifyMaxTokens,
	}

	if in.Template != nil && in.Template.UserPromptTemplate != "" {
		p.User = substitute(in.Template.UserPromptTemplate, map[string]string{
			"document_types": types.String(),
			"text":           sample,
			"mime_type":      in.MimeType,
			"file_name":      in.FileName,
		})
	} else {
		p.User = fmt.Sprintf(
			"Document types:\n%s\nFile name: %s\nMIME type: %s\n\nDocument text (first %d chars):\n%s",
			types.String(), in.FileName, in.MimeType, classificationSampleLimit, sample,
		)
	}

	applyTemplate(&p, in.Template)
	return p
}

// ExtractionInput carries everything needed to build an extraction prompt
// for one text chunk.
type ExtractionInput struct {
	Categories   []model.TaxonomyCategory
	Chunk        string
	ChunkIndex   int
	ChunkTotal   int
	DocumentType string
	Template     *model.TaxonomyPromptTemplate
}

// BuildExtraction produces the per-chunk field extraction prompt.
func BuildExtraction(in ExtractionInput) Prompt {
	var fields strings.Builder
	for _, cat := range in.Categories {
		for _, f := range cat.Fields {
			fields.WriteString(fmt.Sprintf("- %s.%s [%s]: %s", cat.Key, f.Key, f.DataType, f.Label))
			if len(f.Examples) > 0 {
				fields.WriteString(fmt.Sprintf(" (examples: %s)", strings.Join(f.Examples, ", ")))
			}
			fields.WriteString("\n")
		}
	}

	p := Prompt{
		System:      extractSystemPrompt,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultExtractMaxTokens,
	}

	if in.Template != nil && in.Template.UserPromptTemplate != "" {
		p.User = substitute(in.Template.UserPromptTemplate, map[string]string{
			"fields":        fields.String(),
			"chunk":         in.Chunk,
			"chunk_index":   fmt.Sprintf("%d", in.ChunkIndex+1),
			"chunk_total":   fmt.Sprintf("%d", in.ChunkTotal),
			"document_type": in.DocumentType,
		})
	} else {
		p.User = fmt.Sprintf(
			"Document type: %s\nChunk %d of %d.\n\nFields to extract:\n%s\nText:\n%s",
			in.DocumentType, in.ChunkIndex+1, in.ChunkTotal, fields.String(), in.Chunk,
		)
	}

	applyTemplate(&p, in.Template)
	return p
}

// applyTemplate overlays a pack template's overrides onto the defaults.
func applyTemplate(p *Prompt, tmpl *model.TaxonomyPromptTemplate) {
	if tmpl == nil {
		return
	}
	if tmpl.SystemPrompt != "" {
		p.System = tmpl.SystemPrompt
	}
	if tmpl.Model != "" {
		p.Model = tmpl.Model
	}
	if tmpl.Temperature != nil {
		p.Temperature = *tmpl.Temperature
	}
	if tmpl.MaxTokens != nil && *tmpl.MaxTokens > 0 {
		p.MaxTokens = *tmpl.MaxTokens
	}
}

// substitute replaces {{name}} placeholders. Unknown placeholders are left
// untouched so template typos stay visible in operator review.
func substitute(tmpl string, vars map[string]string) string {
	out := tmpl
	for name, val := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", val)
	}
	return out
}

// truncate cuts s to at most limit bytes on a rune boundary so the sample
// never ends in a partial UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
