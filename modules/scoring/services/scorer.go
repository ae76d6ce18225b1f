package services

import (
	"sort"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/pkg/docvalue"
	"github.com/auditmed/report-scoring/pkg/metrics"
)

const (
	defaultBaseScore = 100
	minScore         = 0
	maxScore         = 100
)

// Scorer runs the rule set over one document and aggregates deductions
// into a bounded score. Evaluation is pure and synchronous; one Scorer
// may serve any number of goroutines scoring independent documents.
type Scorer struct {
	validators *Validators
	collector  *metrics.Collector

	// now feeds the TODAY sentinel and month-age checks; swapped in tests.
	now func() time.Time
}

// NewScorer wires the scorer. Both arguments may be nil: a nil validator
// registry makes every validator-backed rule a logged no-op, and a nil
// collector disables instrumentation.
func NewScorer(validators *Validators, collector *metrics.Collector) *Scorer {
	return &Scorer{
		validators: validators,
		collector:  collector,
		now:        time.Now,
	}
}

// Evaluate scores the document against the given rules.
//
// previousScore nil means first evaluation: the base score is 100 and
// the delta is reported against zero. On re-evaluation the previous
// score is both the base and the delta reference, so an unchanged
// document yields delta 0.
func (s *Scorer) Evaluate(rules []types.ScoringRule, doc docvalue.Value, provider string, previousScore *int) types.ScoringResult {
	baseScore := defaultBaseScore
	deltaReference := 0
	if previousScore != nil {
		baseScore = *previousScore
		deltaReference = *previousScore
	}

	ordered := orderRules(rules)
	now := s.now()

	result := types.ScoringResult{
		PreviousScore: deltaReference,
		BaseScore:     baseScore,
		Deductions:    make([]types.Deduction, 0, len(ordered)),
		Flags:         make([]types.Flag, 0),
	}

	triggeredCount := 0
	for _, rule := range ordered {
		if !rule.IsActive || !rule.AppliesTo(provider) {
			continue
		}
		triggered := RuleTriggered(rule, doc, now, s.validators)
		result.Deductions = append(result.Deductions, types.Deduction{
			RuleID:    rule.RuleID,
			RuleName:  rule.Name,
			Points:    rule.Points,
			Triggered: triggered,
			Reason:    rule.Description,
		})
		if !triggered {
			continue
		}
		triggeredCount++
		result.TotalDeducted += rule.Points
		result.Flags = append(result.Flags, types.Flag{
			Severity:  rule.Level.Severity(),
			RuleName:  rule.Name,
			Message:   rule.Description,
			FieldPath: rule.FieldPath(),
		})
	}

	result.FinalScore = clampScore(baseScore - result.TotalDeducted)
	result.Delta = result.FinalScore - deltaReference

	if s.collector != nil {
		s.collector.RecordScoring(len(result.Deductions), triggeredCount, result.FinalScore)
	}
	return result
}

// orderRules fixes flag display order: category asc, points desc, ruleId
// asc as the final tiebreak so equal rules cannot flap between runs.
func orderRules(rules []types.ScoringRule) []types.ScoringRule {
	ordered := append([]types.ScoringRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Category != ordered[j].Category {
			return ordered[i].Category < ordered[j].Category
		}
		if ordered[i].Points != ordered[j].Points {
			return ordered[i].Points > ordered[j].Points
		}
		return ordered[i].RuleID < ordered[j].RuleID
	})
	return ordered
}

func clampScore(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
