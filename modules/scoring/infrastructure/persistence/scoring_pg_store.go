package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore implements ports.Store over Postgres. Every mutation commits
// the rule row and its change-log entry in one transaction; version
// numbers are guarded by a unique constraint so a concurrent insert
// surfaces as ports.ErrVersionConflict instead of a duplicate snapshot.
type PGStore struct {
	pool pgBeginner
}

var _ ports.Store = (*PGStore)(nil)

func NewPGStore(pool pgBeginner) *PGStore {
	return &PGStore{pool: pool}
}

const pgUniqueViolation = "23505"

func isPgUniqueViolation(err error) bool {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func (s *PGStore) CreateRule(ctx context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	conditions, affectedFields, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO scoring.rules (
  rule_id, name, level, points, description, provider_target, category,
  is_custom, conditions, logic_operator, affected_fields, is_active,
  has_validator, validator_key, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`, rule.RuleID, rule.Name, string(rule.Level), rule.Points, rule.Description,
		rule.ProviderTarget, rule.Category, rule.IsCustom, conditions,
		string(rule.LogicOperator), affectedFields, rule.IsActive,
		rule.HasValidator, rule.ValidatorKey, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ports.ErrRuleExists
		}
		return err
	}

	if err := insertChangeLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) UpdateRule(ctx context.Context, rule types.ScoringRule, entry types.RuleChangeLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	conditions, affectedFields, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE scoring.rules SET
  name = $2, level = $3, points = $4, description = $5,
  provider_target = $6, category = $7, is_custom = $8, conditions = $9,
  logic_operator = $10, affected_fields = $11, has_validator = $12,
  validator_key = $13, updated_at = $14
WHERE rule_id = $1
`, rule.RuleID, rule.Name, string(rule.Level), rule.Points, rule.Description,
		rule.ProviderTarget, rule.Category, rule.IsCustom, conditions,
		string(rule.LogicOperator), affectedFields, rule.HasValidator,
		rule.ValidatorKey, rule.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrRuleNotFound
	}

	if err := insertChangeLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) SetRuleActive(ctx context.Context, ruleID string, active bool, entry types.RuleChangeLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
UPDATE scoring.rules SET is_active = $2, updated_at = $3 WHERE rule_id = $1
`, ruleID, active, entry.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrRuleNotFound
	}

	if err := insertChangeLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) DeleteRule(ctx context.Context, ruleID string, entry types.RuleChangeLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `DELETE FROM scoring.rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrRuleNotFound
	}

	if err := insertChangeLogTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const ruleColumns = `
rule_id, name, level, points, description, provider_target, category,
is_custom, conditions, logic_operator, affected_fields, is_active,
has_validator, validator_key, created_at, updated_at`

func (s *PGStore) GetRule(ctx context.Context, ruleID string) (types.ScoringRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.ScoringRule{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	row := tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM scoring.rules WHERE rule_id = $1`, ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ScoringRule{}, ports.ErrRuleNotFound
	}
	if err != nil {
		return types.ScoringRule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.ScoringRule{}, err
	}
	return rule, nil
}

func (s *PGStore) ListRules(ctx context.Context, filter ports.RuleFilter) ([]types.ScoringRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT `+ruleColumns+`
FROM scoring.rules
WHERE ($1::bool IS FALSE OR is_active)
  AND ($2::text = '' OR provider_target = 'ALL' OR provider_target = $2::text)
  AND ($3::text = '' OR category = $3::text)
ORDER BY rule_id ASC
`, filter.ActiveOnly, filter.Provider, filter.Category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]types.ScoringRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *PGStore) CountRulesByCategory(ctx context.Context) (map[string]int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT category, count(*) FROM scoring.rules GROUP BY category
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *PGStore) LatestVersion(ctx context.Context) (types.RuleVersion, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.RuleVersion{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	row := tx.QueryRow(ctx, `
SELECT id, version_number, rules_snapshot, rules_hash, description, created_at
FROM scoring.rule_versions
ORDER BY version_number DESC
LIMIT 1
`)
	version, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.RuleVersion{}, false, nil
	}
	if err != nil {
		return types.RuleVersion{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RuleVersion{}, false, err
	}
	return version, true, nil
}

func (s *PGStore) InsertVersion(ctx context.Context, version types.RuleVersion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	snapshot, err := json.Marshal(version.RulesSnapshot)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO scoring.rule_versions (
  id, version_number, rules_snapshot, rules_hash, description, created_at
) VALUES ($1,$2,$3,$4,$5,$6)
`, version.ID, version.VersionNumber, snapshot, version.RulesHash,
		version.Description, version.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ports.ErrVersionConflict
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetVersionByNumber(ctx context.Context, number int) (types.RuleVersion, error) {
	return s.getVersion(ctx, `
SELECT id, version_number, rules_snapshot, rules_hash, description, created_at
FROM scoring.rule_versions WHERE version_number = $1
`, number)
}

func (s *PGStore) GetVersionByID(ctx context.Context, id string) (types.RuleVersion, error) {
	return s.getVersion(ctx, `
SELECT id, version_number, rules_snapshot, rules_hash, description, created_at
FROM scoring.rule_versions WHERE id = $1
`, id)
}

func (s *PGStore) getVersion(ctx context.Context, query string, arg any) (types.RuleVersion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.RuleVersion{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	version, err := scanVersion(tx.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.RuleVersion{}, ports.ErrVersionNotFound
	}
	if err != nil {
		return types.RuleVersion{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RuleVersion{}, err
	}
	return version, nil
}

func (s *PGStore) ListVersions(ctx context.Context) ([]types.RuleVersion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id, version_number, rules_snapshot, rules_hash, description, created_at
FROM scoring.rule_versions
ORDER BY version_number DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]types.RuleVersion, 0)
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return versions, nil
}

const changeColumns = `
id, rule_id, rule_name, change_type, previous_value, new_value,
changed_by, change_reason, version_number, created_at`

// Change listings order on seq, the insertion-ordered key, so ties
// within one millisecond come back in write order like the memory store.
func (s *PGStore) RecentChanges(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error) {
	return s.listChanges(ctx, `
SELECT `+changeColumns+`
FROM scoring.rule_change_log
ORDER BY seq DESC
LIMIT $1
`, limit)
}

func (s *PGStore) ChangesForRule(ctx context.Context, ruleID string) ([]types.RuleChangeLogEntry, error) {
	return s.listChanges(ctx, `
SELECT `+changeColumns+`
FROM scoring.rule_change_log
WHERE rule_id = $1
ORDER BY seq ASC
`, ruleID)
}

func (s *PGStore) ChangesBetweenVersions(ctx context.Context, fromVersion int, toVersion int) ([]types.RuleChangeLogEntry, error) {
	return s.listChanges(ctx, `
SELECT `+changeColumns+`
FROM scoring.rule_change_log
WHERE version_number > $1 AND version_number <= $2
ORDER BY seq ASC
`, fromVersion, toVersion)
}

func (s *PGStore) CountChangesAfterVersion(ctx context.Context, versionNumber int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var count int
	if err := tx.QueryRow(ctx, `
SELECT count(*) FROM scoring.rule_change_log WHERE version_number > $1
`, versionNumber).Scan(&count); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PGStore) listChanges(ctx context.Context, query string, args ...any) ([]types.RuleChangeLogEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.RuleChangeLogEntry, 0)
	for rows.Next() {
		var entry types.RuleChangeLogEntry
		var changeType string
		if err := rows.Scan(&entry.ID, &entry.RuleID, &entry.RuleName, &changeType,
			&entry.PreviousValue, &entry.NewValue, &entry.ChangedBy,
			&entry.ChangeReason, &entry.VersionNumber, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ChangeType = types.ChangeType(changeType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// insertChangeLogTx stamps version_number from the versions table inside
// the caller's transaction, so the rule row and the tagged entry commit
// against the same snapshot state.
func insertChangeLogTx(ctx context.Context, tx pgx.Tx, entry types.RuleChangeLogEntry) error {
	_, err := tx.Exec(ctx, `
INSERT INTO scoring.rule_change_log (
  id, rule_id, rule_name, change_type, previous_value, new_value,
  changed_by, change_reason, version_number, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,
  (SELECT COALESCE(MAX(version_number), 0) + 1 FROM scoring.rule_versions),
  $9)
`, entry.ID, entry.RuleID, entry.RuleName, string(entry.ChangeType),
		entry.PreviousValue, entry.NewValue, entry.ChangedBy,
		entry.ChangeReason, entry.CreatedAt)
	return err
}

func encodeRuleJSON(rule types.ScoringRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, err
	}
	affectedFields, err := json.Marshal(rule.AffectedFields)
	if err != nil {
		return nil, nil, err
	}
	return conditions, affectedFields, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (types.ScoringRule, error) {
	var rule types.ScoringRule
	var level, logicOperator string
	var conditions, affectedFields []byte
	if err := row.Scan(&rule.RuleID, &rule.Name, &level, &rule.Points,
		&rule.Description, &rule.ProviderTarget, &rule.Category, &rule.IsCustom,
		&conditions, &logicOperator, &affectedFields, &rule.IsActive,
		&rule.HasValidator, &rule.ValidatorKey, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return types.ScoringRule{}, err
	}
	rule.Level = types.RuleLevel(level)
	rule.LogicOperator = types.LogicOperator(logicOperator)
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return types.ScoringRule{}, err
	}
	if err := json.Unmarshal(affectedFields, &rule.AffectedFields); err != nil {
		return types.ScoringRule{}, err
	}
	return rule, nil
}

func scanVersion(row rowScanner) (types.RuleVersion, error) {
	var version types.RuleVersion
	var snapshot []byte
	if err := row.Scan(&version.ID, &version.VersionNumber, &snapshot,
		&version.RulesHash, &version.Description, &version.CreatedAt); err != nil {
		return types.RuleVersion{}, err
	}
	if err := json.Unmarshal(snapshot, &version.RulesSnapshot); err != nil {
		return types.RuleVersion{}, err
	}
	return version, nil
}
