package services

import (
	"context"
	"strings"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

const defaultRecentChanges = 50

// ChangeLog is the read side of the audit trail. Writes only ever
// happen inside rule mutations; there is no update or delete.
type ChangeLog struct {
	store ports.Store
}

func NewChangeLog(store ports.Store) *ChangeLog {
	return &ChangeLog{store: store}
}

func (c *ChangeLog) Recent(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error) {
	if limit <= 0 {
		limit = defaultRecentChanges
	}
	return c.store.RecentChanges(ctx, limit)
}

func (c *ChangeLog) ForRule(ctx context.Context, ruleID string) ([]types.RuleChangeLogEntry, error) {
	return c.store.ChangesForRule(ctx, strings.TrimSpace(ruleID))
}
