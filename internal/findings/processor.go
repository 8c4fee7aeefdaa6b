// Package findings normalizes, deduplicates, labels, and severity-classifies
// raw extraction output.
package findings

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/lexhaven/docintel/internal/model"
)

// DefaultLowConfidence is the threshold below which any extraction is
// escalated to high impact for human review.
const DefaultLowConfidence = 0.6

// deadlineKeywords mark field keys that denote statutory or filing deadlines
// and other hard dates. Matching fields classify as critical.
var deadlineKeywords = []string{
	"statute", "limitation", "deadline", "filing", "incident",
	"hearing", "expiration", "expiry", "due_date",
}

// partyKeywords mark field keys that denote a named party to the matter.
// Matching fields classify as high.
var partyKeywords = []string{
	"claimant", "defendant", "plaintiff", "respondent",
	"petitioner", "appellant", "party", "insured", "carrier",
}

// NormalizeValue produces the case- and punctuation-insensitive form used
// for dedup identity: NFKC fold, lowercase, punctuation stripped, runs of
// whitespace collapsed to a single space.
func NormalizeValue(s string) string {
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// dedupKey is the identity of a finding for deduplication.
type dedupKey struct {
	categoryKey string
	fieldKey    string
	value       string
}

// Deduplicate groups raw findings by (categoryKey, fieldKey,
// NormalizeValue(value)) and keeps the highest-confidence member of each
// group. Findings with different normalized values for the same field stay
// distinct; they are conflict candidates for reconciliation. Input order is
// preserved for the survivors.
func Deduplicate(raw []model.RawFinding) []model.RawFinding {
	best := make(map[dedupKey]int, len(raw))
	var order []dedupKey

	for i, f := range raw {
		key := dedupKey{f.CategoryKey, f.FieldKey, NormalizeValue(f.Value)}
		if prev, ok := best[key]; ok {
			if f.Confidence > raw[prev].Confidence {
				best[key] = i
			}
			continue
		}
		best[key] = i
		order = append(order, key)
	}

	out := make([]model.RawFinding, 0, len(order))
	for _, key := range order {
		out = append(out, raw[best[key]])
	}
	return out
}

// Processor labels and severity-classifies raw findings using the resolved
// taxonomy field map.
type Processor struct {
	// LowConfidence is the escalation threshold; zero takes the default.
	LowConfidence float64
}

func (p Processor) lowConfidence() float64 {
	if p.LowConfidence > 0 {
		return p.LowConfidence
	}
	return DefaultLowConfidence
}

// ClassifyImpact assigns the severity tier for one finding. A field flagged
// requiresHumanReview is always high. Low-confidence extractions are always
// high regardless of field semantics. Above the threshold, deadline fields
// are critical, party fields high, everything else medium.
func (p Processor) ClassifyImpact(f model.RawFinding, field *model.TaxonomyField) model.Impact {
	if field != nil && field.RequiresHumanReview {
		return model.ImpactHigh
	}
	if f.Confidence < p.lowConfidence() {
		return model.ImpactHigh
	}

	key := strings.ToLower(f.FieldKey)
	for _, kw := range deadlineKeywords {
		if strings.Contains(key, kw) {
			return model.ImpactCritical
		}
	}
	for _, kw := range partyKeywords {
		if strings.Contains(key, kw) {
			return model.ImpactHigh
		}
	}
	return model.ImpactMedium
}

// Process attaches labels and impacts to raw findings. The label falls back
// to the raw field key when the pack is absent or does not define the field.
func (p Processor) Process(raw []model.RawFinding, fieldMap map[string]*model.TaxonomyField) []model.Finding {
	out := make([]model.Finding, 0, len(raw))
	for _, rf := range raw {
		field := fieldMap[rf.CategoryKey+":"+rf.FieldKey]

		label := rf.FieldKey
		if field != nil && field.Label != "" {
			label = field.Label
		}

		out = append(out, model.Finding{
			CategoryKey: rf.CategoryKey,
			FieldKey:    rf.FieldKey,
			Label:       label,
			Value:       rf.Value,
			SourceQuote: rf.SourceQuote,
			Confidence:  rf.Confidence,
			Impact:      p.ClassifyImpact(rf, field),
			Status:      model.FindingPending,
		})
	}
	return out
}
