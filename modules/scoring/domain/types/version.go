package types

import "time"

// RuleVersion is an immutable snapshot of the active rule set, minted
// only when the canonical fingerprint of that set changes. Snapshots are
// never mutated or deleted.
type RuleVersion struct {
	ID            string        `json:"id"`
	VersionNumber int           `json:"versionNumber"`
	RulesSnapshot []ScoringRule `json:"rulesSnapshot"`
	RulesHash     string        `json:"rulesHash"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}
