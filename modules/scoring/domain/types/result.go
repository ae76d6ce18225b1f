package types

// Flag is the user-facing record of one triggered rule.
type Flag struct {
	Severity  string `json:"severity"`
	RuleName  string `json:"ruleName"`
	Message   string `json:"message"`
	FieldPath string `json:"fieldPath"`
}

// Deduction records one evaluated rule, triggered or not, so a result
// explains itself without re-running the engine.
type Deduction struct {
	RuleID    string `json:"ruleId"`
	RuleName  string `json:"ruleName"`
	Points    int    `json:"points"`
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason"`
}

type ScoringResult struct {
	PreviousScore int         `json:"previousScore"`
	BaseScore     int         `json:"baseScore"`
	Deductions    []Deduction `json:"deductions"`
	TotalDeducted int         `json:"totalDeducted"`
	FinalScore    int         `json:"finalScore"`
	Delta         int         `json:"delta"`
	Flags         []Flag      `json:"flags"`
}
