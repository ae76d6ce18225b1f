package ports

import (
	"context"
	"errors"

	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

var (
	ErrRuleNotFound     = errors.New("rule_not_found")
	ErrRuleExists       = errors.New("rule_exists")
	ErrVersionNotFound  = errors.New("version_not_found")
	ErrVersionConflict  = errors.New("version_number_conflict")
	ErrTransientStorage = errors.New("transient_storage")
)

// RuleFilter narrows rule listings. Zero value lists everything.
type RuleFilter struct {
	Provider   string // matches providerTarget == Provider or "ALL"
	Category   string
	ActiveOnly bool
}

// Store is the persistence handle injected into the Registry and the
// Versioning engine. Mutating calls take the change-log entry the caller
// built and must commit rule row and entry atomically, stamping the
// entry's VersionNumber with latest stored version + 1 inside that same
// transaction. Version inserts must fail with ErrVersionConflict when
// the version number is taken.
type Store interface {
	CreateRule(ctx context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error
	UpdateRule(ctx context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error
	SetRuleActive(ctx context.Context, ruleID string, active bool, entry types.RuleChangeLogEntry) error
	DeleteRule(ctx context.Context, ruleID string, entry types.RuleChangeLogEntry) error
	GetRule(ctx context.Context, ruleID string) (types.ScoringRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]types.ScoringRule, error)
	CountRulesByCategory(ctx context.Context) (map[string]int, error)

	LatestVersion(ctx context.Context) (types.RuleVersion, bool, error)
	InsertVersion(ctx context.Context, version types.RuleVersion) error
	GetVersionByNumber(ctx context.Context, number int) (types.RuleVersion, error)
	GetVersionByID(ctx context.Context, id string) (types.RuleVersion, error)
	ListVersions(ctx context.Context) ([]types.RuleVersion, error)

	RecentChanges(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error)
	ChangesForRule(ctx context.Context, ruleID string) ([]types.RuleChangeLogEntry, error)
	ChangesBetweenVersions(ctx context.Context, fromVersion int, toVersion int) ([]types.RuleChangeLogEntry, error)
	CountChangesAfterVersion(ctx context.Context, versionNumber int) (int, error)
}
