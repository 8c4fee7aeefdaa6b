// Package risk aggregates a matter's findings into a bounded composite risk
// score with contributing factors.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/lexhaven/docintel/internal/model"
)

// Each finding contributes its tier weight scaled by confidence. Per-tier
// totals are capped so no single tier saturates the score, and the sum is
// clamped to [0,100].
var tierWeights = map[model.Impact]float64{
	model.ImpactCritical: 30,
	model.ImpactHigh:     18,
	model.ImpactMedium:   8,
	model.ImpactLow:      3,
}

var tierCaps = map[model.Impact]float64{
	model.ImpactCritical: 45,
	model.ImpactHigh:     30,
	model.ImpactMedium:   15,
	model.ImpactLow:      10,
}

var tierLabels = map[model.Impact]string{
	model.ImpactCritical: "Critical findings",
	model.ImpactHigh:     "High-impact findings",
	model.ImpactMedium:   "Medium-impact findings",
	model.ImpactLow:      "Low-impact findings",
}

// MaxFactors caps how many contributing factors are reported for display.
const MaxFactors = 3

// Factor is one contributing group in a risk score.
type Factor struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail"`
}

// Score is a matter's composite risk.
type Score struct {
	Score   int      `json:"score"`
	Factors []Factor `json:"factors"`
}

// Calculate computes the risk score from a matter's current findings.
// Only findings whose status counts toward risk (pending, accepted,
// auto_applied) participate; rejected and revised findings are excluded.
// The result is a pure function of the input, so recomputation is
// idempotent. Empty input yields score 0 and no factors.
func Calculate(findings []model.Finding) Score {
	type tierAgg struct {
		count      int
		confidence float64
		raw        float64
	}
	tiers := make(map[model.Impact]*tierAgg)

	for _, f := range findings {
		if !f.Status.CountsTowardRisk() {
			continue
		}
		weight, ok := tierWeights[f.Impact]
		if !ok {
			continue
		}
		agg := tiers[f.Impact]
		if agg == nil {
			agg = &tierAgg{}
			tiers[f.Impact] = agg
		}
		agg.count++
		agg.confidence += f.Confidence
		agg.raw += weight * clamp01(f.Confidence)
	}

	var total float64
	var factors []Factor
	for impact, agg := range tiers {
		contribution := math.Min(agg.raw, tierCaps[impact])
		if contribution <= 0 {
			continue
		}
		total += contribution
		factors = append(factors, Factor{
			Key:          string(impact) + "_findings",
			Label:        tierLabels[impact],
			Contribution: round1(contribution),
			Detail: fmt.Sprintf("%d finding(s), avg confidence %.2f",
				agg.count, agg.confidence/float64(agg.count)),
		})
	}

	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Contribution != factors[j].Contribution {
			return factors[i].Contribution > factors[j].Contribution
		}
		return factors[i].Key < factors[j].Key
	})
	if len(factors) > MaxFactors {
		factors = factors[:MaxFactors]
	}

	score := int(math.Round(math.Min(total, 100)))
	if score < 0 {
		score = 0
	}
	return Score{Score: score, Factors: factors}
}

// MarshalFactors serializes factors for the matter's risk_factors column.
func MarshalFactors(factors []Factor) ([]byte, error) {
	return json.Marshal(factors)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
