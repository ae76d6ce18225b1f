package types

import (
	"encoding/json"
	"time"
)

type ChangeType string

const (
	ChangeCreated     ChangeType = "CREATED"
	ChangeUpdated     ChangeType = "UPDATED"
	ChangeDeleted     ChangeType = "DELETED"
	ChangeActivated   ChangeType = "ACTIVATED"
	ChangeDeactivated ChangeType = "DEACTIVATED"
)

// RuleChangeLogEntry is one append-only audit row for a rule mutation.
// VersionNumber is the number of the snapshot this change will belong to
// (latest stored version + 1 at mutation time), so a version's history
// is reconstructed by joining on it.
type RuleChangeLogEntry struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"ruleId"`
	RuleName      string          `json:"ruleName"`
	ChangeType    ChangeType      `json:"changeType"`
	PreviousValue json.RawMessage `json:"previousValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	ChangedBy     string          `json:"changedBy,omitempty"`
	ChangeReason  string          `json:"changeReason,omitempty"`
	VersionNumber int             `json:"versionNumber"`
	CreatedAt     time.Time       `json:"createdAt"`
}
