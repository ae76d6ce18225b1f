package types

import "time"

// ProviderAll marks a rule that applies to every insurance-form template.
const ProviderAll = "ALL"

// DateLayout is the DD/MM/YYYY format the extraction pipeline emits.
const DateLayout = "02/01/2006"

// TodaySentinel in a condition value resolves to the evaluation clock.
const TodaySentinel = "TODAY"

type RuleLevel string

const (
	LevelCritical  RuleLevel = "CRITICAL"
	LevelImportant RuleLevel = "IMPORTANT"
	LevelModerate  RuleLevel = "MODERATE"
	LevelDiscreet  RuleLevel = "DISCREET"
)

func (l RuleLevel) Valid() bool {
	switch l {
	case LevelCritical, LevelImportant, LevelModerate, LevelDiscreet:
		return true
	default:
		return false
	}
}

// Severity is the user-facing form of the level carried on a Flag.
func (l RuleLevel) Severity() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelImportant:
		return "important"
	case LevelModerate:
		return "moderate"
	case LevelDiscreet:
		return "discreet"
	default:
		return "unknown"
	}
}

type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

type OperatorKind string

const (
	OpIsEmpty  OperatorKind = "IS_EMPTY"
	OpNotEmpty OperatorKind = "NOT_EMPTY"
	OpIsNull   OperatorKind = "IS_NULL"

	OpEquals    OperatorKind = "EQUALS"
	OpNotEquals OperatorKind = "NOT_EQUALS"
	OpContains  OperatorKind = "CONTAINS"

	OpLessThan        OperatorKind = "LESS_THAN"
	OpGreaterThan     OperatorKind = "GREATER_THAN"
	OpLessThanOrEqual OperatorKind = "LESS_THAN_OR_EQUAL"

	OpRegex    OperatorKind = "REGEX"
	OpIsNumber OperatorKind = "IS_NUMBER"
	OpIsEmail  OperatorKind = "IS_EMAIL"

	OpDateAfter           OperatorKind = "DATE_AFTER"
	OpDateBefore          OperatorKind = "DATE_BEFORE"
	OpDateOlderThanMonths OperatorKind = "DATE_OLDER_THAN_MONTHS"

	OpArrayEmpty             OperatorKind = "ARRAY_EMPTY"
	OpArrayLengthGreaterThan OperatorKind = "ARRAY_LENGTH_GREATER_THAN"
	OpArrayContainsNone      OperatorKind = "ARRAY_CONTAINS_NONE"
	OpArrayMutuallyExclusive OperatorKind = "ARRAY_MUTUALLY_EXCLUSIVE"
)

// RuleCondition is one declarative trigger clause. Exactly one of Value
// and CompareField is meaningful for a given operator; numeric operands
// ride in Value as strings the way they arrive from the rule catalog.
type RuleCondition struct {
	ID           string       `json:"id,omitempty" yaml:"id,omitempty"`
	Field        string       `json:"field" yaml:"field"`
	Operator     OperatorKind `json:"operator" yaml:"operator"`
	Value        string       `json:"value,omitempty" yaml:"value,omitempty"`
	CompareField string       `json:"compareField,omitempty" yaml:"compareField,omitempty"`
}

type ScoringRule struct {
	RuleID         string          `json:"ruleId" yaml:"ruleId"`
	Name           string          `json:"name" yaml:"name"`
	Level          RuleLevel       `json:"level" yaml:"level"`
	Points         int             `json:"points" yaml:"points"`
	Description    string          `json:"description" yaml:"description"`
	ProviderTarget string          `json:"providerTarget" yaml:"providerTarget"`
	Category       string          `json:"category" yaml:"category"`
	IsCustom       bool            `json:"isCustom" yaml:"isCustom"`
	Conditions     []RuleCondition `json:"conditions" yaml:"conditions"`
	LogicOperator  LogicOperator   `json:"logicOperator,omitempty" yaml:"logicOperator,omitempty"`
	AffectedFields []string        `json:"affectedFields" yaml:"affectedFields"`
	IsActive       bool            `json:"isActive" yaml:"isActive"`
	HasValidator   bool            `json:"hasValidator" yaml:"hasValidator"`
	ValidatorKey   string          `json:"validatorKey,omitempty" yaml:"validatorKey,omitempty"`
	CreatedAt      time.Time       `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt      time.Time       `json:"updatedAt,omitempty" yaml:"-"`
}

// AppliesTo reports whether the rule targets the given provider code.
func (r ScoringRule) AppliesTo(provider string) bool {
	return r.ProviderTarget == ProviderAll || r.ProviderTarget == provider
}

// FieldPath returns the first affected field, the anchor the review UI
// links the flag to.
func (r ScoringRule) FieldPath() string {
	if len(r.AffectedFields) == 0 {
		return ""
	}
	return r.AffectedFields[0]
}
