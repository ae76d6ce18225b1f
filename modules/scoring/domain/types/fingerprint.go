package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintHexLen truncates the sha256 digest; 64 bits of content hash
// is plenty to distinguish rule-set revisions.
const fingerprintHexLen = 16

// canonicalCondition strips the volatile condition id.
type canonicalCondition struct {
	Field        string       `json:"field"`
	Operator     OperatorKind `json:"operator"`
	Value        string       `json:"value,omitempty"`
	CompareField string       `json:"compareField,omitempty"`
}

// canonicalRule carries every semantic field of a rule and none of the
// bookkeeping ones (timestamps). Struct marshalling fixes key order.
type canonicalRule struct {
	RuleID         string               `json:"ruleId"`
	Name           string               `json:"name"`
	Level          RuleLevel            `json:"level"`
	Points         int                  `json:"points"`
	Description    string               `json:"description"`
	ProviderTarget string               `json:"providerTarget"`
	Category       string               `json:"category"`
	IsCustom       bool                 `json:"isCustom"`
	Conditions     []canonicalCondition `json:"conditions"`
	LogicOperator  LogicOperator        `json:"logicOperator,omitempty"`
	AffectedFields []string             `json:"affectedFields"`
	IsActive       bool                 `json:"isActive"`
	HasValidator   bool                 `json:"hasValidator"`
	ValidatorKey   string               `json:"validatorKey,omitempty"`
}

// RulesFingerprint returns the deterministic content hash of a rule set:
// rules sorted by ruleId, canonicalized, JSON-serialized, sha256, first
// 16 hex chars. Any semantic edit (points, isActive, a condition) moves
// the fingerprint; reordering the input does not.
func RulesFingerprint(rules []ScoringRule) string {
	canonical := make([]canonicalRule, 0, len(rules))
	for _, r := range rules {
		conditions := make([]canonicalCondition, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conditions = append(conditions, canonicalCondition{
				Field:        c.Field,
				Operator:     c.Operator,
				Value:        c.Value,
				CompareField: c.CompareField,
			})
		}
		canonical = append(canonical, canonicalRule{
			RuleID:         r.RuleID,
			Name:           r.Name,
			Level:          r.Level,
			Points:         r.Points,
			Description:    r.Description,
			ProviderTarget: r.ProviderTarget,
			Category:       r.Category,
			IsCustom:       r.IsCustom,
			Conditions:     conditions,
			LogicOperator:  r.LogicOperator,
			AffectedFields: append([]string(nil), r.AffectedFields...),
			IsActive:       r.IsActive,
			HasValidator:   r.HasValidator,
			ValidatorKey:   r.ValidatorKey,
		})
	}
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].RuleID < canonical[j].RuleID })

	raw, _ := json.Marshal(canonical)
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])[:fingerprintHexLen]
}
