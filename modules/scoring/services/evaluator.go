package services

import (
	"log/slog"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/pkg/docvalue"
)

// RuleTriggered decides whether a rule fires against the document. A
// triggered rule always describes a violation, never a bonus.
//
// Precedence: a validator-backed rule delegates entirely to the named
// validator (declared conditions are ignored); an empty-condition rule
// without a validator never triggers; otherwise the declared conditions
// combine under the rule's logic operator.
func RuleTriggered(rule types.ScoringRule, doc docvalue.Value, now time.Time, validators *Validators) bool {
	if rule.HasValidator {
		if validators == nil {
			slog.Warn("validator-backed rule without registry", "rule", rule.RuleID)
			return false
		}
		verdict, found := validators.Evaluate(rule.ValidatorKey, doc)
		if !found {
			slog.Warn("validator key not registered",
				"rule", rule.RuleID, "validatorKey", rule.ValidatorKey)
			return false
		}
		return verdict
	}

	switch len(rule.Conditions) {
	case 0:
		return false
	case 1:
		return EvaluateCondition(rule.Conditions[0], doc, now)
	}

	switch rule.LogicOperator {
	case types.LogicAnd:
		for _, cond := range rule.Conditions {
			if !EvaluateCondition(cond, doc, now) {
				return false
			}
		}
		return true
	case types.LogicOr:
		for _, cond := range rule.Conditions {
			if EvaluateCondition(cond, doc, now) {
				return true
			}
		}
		return false
	default:
		// Creation-time validation forbids this; a rule that slipped
		// through is a configuration error, not a reason to guess.
		slog.Warn("multi-condition rule without logic operator", "rule", rule.RuleID)
		return false
	}
}
