// Package persistence provides the storage backends for the scoring
// registry and versioning engine: Postgres for production, an in-memory
// store for tests and the offline CLI path.
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

// MemoryStore implements ports.Store with mutex-guarded maps. Each
// mutation holds the write lock for rule row + change-log entry
// together, which gives the same all-or-nothing guarantee a Postgres
// transaction does.
type MemoryStore struct {
	mu       sync.RWMutex
	rules    map[string]types.ScoringRule
	versions []types.RuleVersion
	changes  []types.RuleChangeLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]types.ScoringRule)}
}

func cloneRule(rule types.ScoringRule) types.ScoringRule {
	rule.Conditions = append([]types.RuleCondition(nil), rule.Conditions...)
	rule.AffectedFields = append([]string(nil), rule.AffectedFields...)
	return rule
}

func cloneVersion(version types.RuleVersion) types.RuleVersion {
	snapshot := make([]types.ScoringRule, 0, len(version.RulesSnapshot))
	for _, rule := range version.RulesSnapshot {
		snapshot = append(snapshot, cloneRule(rule))
	}
	version.RulesSnapshot = snapshot
	return version
}

// nextVersionNumberLocked tags a change with the snapshot that will
// absorb it: latest stored version + 1. Callers hold the write lock, so
// no snapshot can slip in between the read and the append.
func (s *MemoryStore) nextVersionNumberLocked() int {
	next := 1
	for _, v := range s.versions {
		if v.VersionNumber >= next {
			next = v.VersionNumber + 1
		}
	}
	return next
}

func (s *MemoryStore) CreateRule(_ context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.RuleID]; exists {
		return ports.ErrRuleExists
	}
	s.rules[rule.RuleID] = cloneRule(rule)
	entry.VersionNumber = s.nextVersionNumberLocked()
	s.changes = append(s.changes, entry)
	return nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.RuleID]; !exists {
		return ports.ErrRuleNotFound
	}
	s.rules[rule.RuleID] = cloneRule(rule)
	entry.VersionNumber = s.nextVersionNumberLocked()
	s.changes = append(s.changes, entry)
	return nil
}

func (s *MemoryStore) SetRuleActive(_ context.Context, ruleID string, active bool, entry types.RuleChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return ports.ErrRuleNotFound
	}
	rule.IsActive = active
	rule.UpdatedAt = entry.CreatedAt
	s.rules[ruleID] = rule
	entry.VersionNumber = s.nextVersionNumberLocked()
	s.changes = append(s.changes, entry)
	return nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, ruleID string, entry types.RuleChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[ruleID]; !exists {
		return ports.ErrRuleNotFound
	}
	delete(s.rules, ruleID)
	entry.VersionNumber = s.nextVersionNumberLocked()
	s.changes = append(s.changes, entry)
	return nil
}

func (s *MemoryStore) GetRule(_ context.Context, ruleID string) (types.ScoringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return types.ScoringRule{}, ports.ErrRuleNotFound
	}
	return cloneRule(rule), nil
}

func (s *MemoryStore) ListRules(_ context.Context, filter ports.RuleFilter) ([]types.ScoringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ScoringRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		if filter.Provider != "" && !rule.AppliesTo(filter.Provider) {
			continue
		}
		if filter.Category != "" && rule.Category != filter.Category {
			continue
		}
		out = append(out, cloneRule(rule))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (s *MemoryStore) CountRulesByCategory(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rule := range s.rules {
		counts[rule.Category]++
	}
	return counts, nil
}

func (s *MemoryStore) LatestVersion(_ context.Context) (types.RuleVersion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.versions) == 0 {
		return types.RuleVersion{}, false, nil
	}
	latest := s.versions[0]
	for _, v := range s.versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return cloneVersion(latest), true, nil
}

func (s *MemoryStore) InsertVersion(_ context.Context, version types.RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions {
		if existing.VersionNumber == version.VersionNumber {
			return ports.ErrVersionConflict
		}
	}
	s.versions = append(s.versions, cloneVersion(version))
	return nil
}

func (s *MemoryStore) GetVersionByNumber(_ context.Context, number int) (types.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions {
		if v.VersionNumber == number {
			return cloneVersion(v), nil
		}
	}
	return types.RuleVersion{}, ports.ErrVersionNotFound
}

func (s *MemoryStore) GetVersionByID(_ context.Context, id string) (types.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions {
		if v.ID == id {
			return cloneVersion(v), nil
		}
	}
	return types.RuleVersion{}, ports.ErrVersionNotFound
}

func (s *MemoryStore) ListVersions(_ context.Context) ([]types.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RuleVersion, 0, len(s.versions))
	for _, v := range s.versions {
		out = append(out, cloneVersion(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (s *MemoryStore) RecentChanges(_ context.Context, limit int) ([]types.RuleChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RuleChangeLogEntry, 0, limit)
	for i := len(s.changes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.changes[i])
	}
	return out, nil
}

func (s *MemoryStore) ChangesForRule(_ context.Context, ruleID string) ([]types.RuleChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RuleChangeLogEntry, 0)
	for _, entry := range s.changes {
		if entry.RuleID == ruleID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) ChangesBetweenVersions(_ context.Context, fromVersion int, toVersion int) ([]types.RuleChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RuleChangeLogEntry, 0)
	for _, entry := range s.changes {
		if entry.VersionNumber > fromVersion && entry.VersionNumber <= toVersion {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountChangesAfterVersion(_ context.Context, versionNumber int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.changes {
		if entry.VersionNumber > versionNumber {
			count++
		}
	}
	return count, nil
}
