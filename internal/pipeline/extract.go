package pipeline

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/model"
	"github.com/lexhaven/docintel/internal/prompt"
)

// extract runs the per-chunk field extraction calls. Skipped when no
// taxonomy resolved. Malformed model output is a permanent stage failure,
// never retried: resending the same text yields the same malformed answer.
func (o *Orchestrator) extract(ctx context.Context, st *runState) (bool, error) {
	if st.snap == nil {
		return true, nil
	}

	categories := o.activeCategories(st)
	if len(categories) == 0 {
		return true, nil
	}

	chunks := chunkText(st.doc.ExtractedText, o.cfg.ChunkSize, o.cfg.ChunkOverlap)
	tmpl := st.snap.Template(model.TemplateExtraction)

	for i, chunk := range chunks {
		p := prompt.BuildExtraction(prompt.ExtractionInput{
			Categories:   categories,
			Chunk:        chunk,
			ChunkIndex:   i,
			ChunkTotal:   len(chunks),
			DocumentType: st.run.DocumentType,
			Template:     tmpl,
		})

		result, err := o.callModel(ctx, p)
		if err != nil {
			return false, eris.Wrapf(err, "extract: inference chunk %d/%d", i+1, len(chunks))
		}

		var raw []model.RawFinding
		if err := json.Unmarshal([]byte(extractJSON(result.Content)), &raw); err != nil {
			return false, eris.Wrapf(err, "extract: malformed model output %q", truncateForLog(result.Content))
		}
		for j := range raw {
			raw[j].ChunkIndex = i
		}
		st.raw = append(st.raw, raw...)
	}

	zap.L().Debug("extract: finished",
		zap.String("run_id", st.run.ID.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("raw_findings", len(st.raw)),
	)
	return false, nil
}

// activeCategories narrows the pack's categories to those the classified
// document type activates. An unknown type or an empty activation list
// keeps every category in play.
func (o *Orchestrator) activeCategories(st *runState) []model.TaxonomyCategory {
	all := st.snap.Pack.Categories
	if st.docType == nil || len(st.docType.ActivatesCategories) == 0 {
		return all
	}
	active := make(map[string]bool, len(st.docType.ActivatesCategories))
	for _, key := range st.docType.ActivatesCategories {
		active[key] = true
	}
	var out []model.TaxonomyCategory
	for _, cat := range all {
		if active[cat.Key] {
			out = append(out, cat)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// chunkText splits text into size-bounded chunks with overlap carried
// between neighbors so values spanning a boundary appear whole in at
// least one chunk.
func chunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		end = runeStart(text, end)
		chunks = append(chunks, text[start:end])
		next := runeStart(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// runeStart backs i off to the nearest UTF-8 rune boundary at or before it,
// so chunk edges never split a multi-byte character.
func runeStart(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
