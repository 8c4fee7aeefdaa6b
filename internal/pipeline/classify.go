package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/prompt"
	"github.com/lexhaven/docintel/internal/taxonomy"
	"github.com/lexhaven/docintel/pkg/llm"
)

// classification is the strict JSON shape the classify prompt demands.
type classification struct {
	DocumentType string  `json:"documentType"`
	Confidence   float64 `json:"confidence"`
}

// classify resolves the taxonomy and determines the document type. The
// stage is skipped when no pack or no document types exist; extraction
// then runs over all categories.
func (o *Orchestrator) classify(ctx context.Context, st *runState) (bool, error) {
	snap, err := o.resolver.Resolve(ctx, st.run.TenantID, st.matter.PracticeArea)
	if err != nil {
		if eris.Is(err, taxonomy.ErrNoPack) {
			return true, nil
		}
		return false, eris.Wrap(err, "classify: resolve taxonomy")
	}
	st.snap = snap

	if len(snap.Pack.DocumentTypes) == 0 {
		return true, nil
	}

	p := prompt.BuildClassification(prompt.ClassificationInput{
		DocumentTypes: snap.Pack.DocumentTypes,
		TextSample:    st.doc.ExtractedText,
		MimeType:      st.doc.MimeType,
		FileName:      st.doc.FileName,
		Template:      snap.Template(model.TemplateClassification),
	})

	result, err := o.callModel(ctx, p)
	if err != nil {
		return false, eris.Wrap(err, "classify: inference")
	}

	var c classification
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &c); err != nil {
		return false, eris.Wrapf(err, "classify: malformed model output %q", truncateForLog(result.Content))
	}

	for i := range snap.Pack.DocumentTypes {
		if snap.Pack.DocumentTypes[i].Key == c.DocumentType {
			st.docType = &snap.Pack.DocumentTypes[i]
			break
		}
	}
	if st.docType == nil {
		// Unknown keys are recorded but do not narrow extraction.
		zap.L().Warn("classify: model returned unknown document type",
			zap.String("run_id", st.run.ID.String()),
			zap.String("document_type", c.DocumentType),
		)
	}
	st.run.DocumentType = c.DocumentType
	return false, nil
}

// callModel issues one inference call, applying the prompt's resolved
// parameters over the orchestrator's default model.
func (o *Orchestrator) callModel(ctx context.Context, p prompt.Prompt) (*llm.CallResult, error) {
	modelName := p.Model
	if modelName == "" {
		modelName = o.cfg.Model
	}
	temp := p.Temperature
	return o.llm.Call(ctx, llm.CallRequest{
		Model:       modelName,
		System:      p.System,
		Messages:    []llm.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
		MaxTokens:   p.MaxTokens,
		JSONOnly:    true,
	})
}

// extractJSON trims whatever wrapping the model added around a JSON value,
// such as markdown fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
