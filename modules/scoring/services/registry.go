package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/pkg/uuidv7"
)

// ChangeMeta carries the audit attribution for one rule mutation.
type ChangeMeta struct {
	ChangedBy string
	Reason    string
}

// RulePatch is a partial update; nil fields keep the current value.
type RulePatch struct {
	Name           *string
	Level          *types.RuleLevel
	Points         *int
	Description    *string
	ProviderTarget *string
	Category       *string
	IsCustom       *bool
	Conditions     *[]types.RuleCondition
	LogicOperator  *types.LogicOperator
	AffectedFields *[]string
	HasValidator   *bool
	ValidatorKey   *string
}

// Registry owns the live rule rows. Every mutation validates the result,
// appends a change-log entry tagged with the version that will absorb
// it, and commits both through the store in one transaction. Version
// creation itself stays demand-driven (see Versioning).
type Registry struct {
	store      ports.Store
	validators *Validators
	now        func() time.Time
}

// NewRegistry wires the registry. The validator registry may be nil, in
// which case hasValidator rules are accepted on key presence alone.
func NewRegistry(store ports.Store, validators *Validators) *Registry {
	return &Registry{store: store, validators: validators, now: time.Now}
}

func (r *Registry) Create(ctx context.Context, rule types.ScoringRule, meta ChangeMeta) (types.ScoringRule, error) {
	rule = normalizeRule(rule)
	if err := r.validateRule(rule); err != nil {
		return types.ScoringRule{}, err
	}
	rule.CreatedAt = r.now().UTC()
	rule.UpdatedAt = rule.CreatedAt

	entry, err := r.buildEntry(rule.RuleID, rule.Name, types.ChangeCreated, nil, &rule, meta)
	if err != nil {
		return types.ScoringRule{}, err
	}
	if err := r.store.CreateRule(ctx, rule, entry); err != nil {
		return types.ScoringRule{}, err
	}
	return rule, nil
}

func (r *Registry) Update(ctx context.Context, ruleID string, patch RulePatch, meta ChangeMeta) (types.ScoringRule, error) {
	current, err := r.store.GetRule(ctx, strings.TrimSpace(ruleID))
	if err != nil {
		return types.ScoringRule{}, err
	}

	updated := applyPatch(current, patch)
	updated = normalizeRule(updated)
	updated.RuleID = current.RuleID
	updated.IsActive = current.IsActive
	updated.CreatedAt = current.CreatedAt
	if err := r.validateRule(updated); err != nil {
		return types.ScoringRule{}, err
	}
	updated.UpdatedAt = r.now().UTC()

	entry, err := r.buildEntry(updated.RuleID, updated.Name, types.ChangeUpdated, &current, &updated, meta)
	if err != nil {
		return types.ScoringRule{}, err
	}
	if err := r.store.UpdateRule(ctx, updated, entry); err != nil {
		return types.ScoringRule{}, err
	}
	return updated, nil
}

func (r *Registry) Activate(ctx context.Context, ruleID string, meta ChangeMeta) (types.ScoringRule, error) {
	return r.setActive(ctx, ruleID, true, types.ChangeActivated, meta)
}

func (r *Registry) Deactivate(ctx context.Context, ruleID string, meta ChangeMeta) (types.ScoringRule, error) {
	return r.setActive(ctx, ruleID, false, types.ChangeDeactivated, meta)
}

func (r *Registry) setActive(ctx context.Context, ruleID string, active bool, change types.ChangeType, meta ChangeMeta) (types.ScoringRule, error) {
	current, err := r.store.GetRule(ctx, strings.TrimSpace(ruleID))
	if err != nil {
		return types.ScoringRule{}, err
	}
	updated := current
	updated.IsActive = active
	updated.UpdatedAt = r.now().UTC()

	entry, err := r.buildEntry(current.RuleID, current.Name, change, &current, &updated, meta)
	if err != nil {
		return types.ScoringRule{}, err
	}
	if err := r.store.SetRuleActive(ctx, current.RuleID, active, entry); err != nil {
		return types.ScoringRule{}, err
	}
	return updated, nil
}

func (r *Registry) Delete(ctx context.Context, ruleID string, meta ChangeMeta) error {
	current, err := r.store.GetRule(ctx, strings.TrimSpace(ruleID))
	if err != nil {
		return err
	}
	entry, err := r.buildEntry(current.RuleID, current.Name, types.ChangeDeleted, &current, nil, meta)
	if err != nil {
		return err
	}
	return r.store.DeleteRule(ctx, current.RuleID, entry)
}

func (r *Registry) Get(ctx context.Context, ruleID string) (types.ScoringRule, error) {
	return r.store.GetRule(ctx, strings.TrimSpace(ruleID))
}

// ListActive returns the active rules for a provider (and optionally a
// category) in scoring order: category asc, points desc, ruleId asc.
func (r *Registry) ListActive(ctx context.Context, provider string, category string) ([]types.ScoringRule, error) {
	rules, err := r.store.ListRules(ctx, ports.RuleFilter{
		Provider:   strings.TrimSpace(provider),
		Category:   strings.TrimSpace(category),
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return orderRules(rules), nil
}

func (r *Registry) ListByProvider(ctx context.Context, provider string) ([]types.ScoringRule, error) {
	rules, err := r.store.ListRules(ctx, ports.RuleFilter{Provider: strings.TrimSpace(provider)})
	if err != nil {
		return nil, err
	}
	return orderRules(rules), nil
}

func (r *Registry) ListAll(ctx context.Context) ([]types.ScoringRule, error) {
	rules, err := r.store.ListRules(ctx, ports.RuleFilter{})
	if err != nil {
		return nil, err
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })
	return rules, nil
}

func (r *Registry) CountByCategory(ctx context.Context) (map[string]int, error) {
	return r.store.CountRulesByCategory(ctx)
}

// buildEntry assembles the change-log row. VersionNumber is left unset:
// the store stamps it with latest version + 1 inside the same
// transaction that commits the rule row, so a snapshot minted while the
// mutation is in flight cannot claim a change it does not contain.
func (r *Registry) buildEntry(ruleID string, ruleName string, change types.ChangeType, previous *types.ScoringRule, next *types.ScoringRule, meta ChangeMeta) (types.RuleChangeLogEntry, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return types.RuleChangeLogEntry{}, err
	}
	entry := types.RuleChangeLogEntry{
		ID:           id,
		RuleID:       ruleID,
		RuleName:     ruleName,
		ChangeType:   change,
		ChangedBy:    strings.TrimSpace(meta.ChangedBy),
		ChangeReason: strings.TrimSpace(meta.Reason),
		CreatedAt:    r.now().UTC(),
	}
	if previous != nil {
		raw, err := json.Marshal(previous)
		if err != nil {
			return types.RuleChangeLogEntry{}, err
		}
		entry.PreviousValue = raw
	}
	if next != nil {
		raw, err := json.Marshal(next)
		if err != nil {
			return types.RuleChangeLogEntry{}, err
		}
		entry.NewValue = raw
	}
	return entry, nil
}

func normalizeRule(rule types.ScoringRule) types.ScoringRule {
	rule.RuleID = strings.TrimSpace(rule.RuleID)
	rule.Name = strings.TrimSpace(rule.Name)
	rule.Description = strings.TrimSpace(rule.Description)
	rule.ProviderTarget = strings.TrimSpace(rule.ProviderTarget)
	rule.Category = strings.TrimSpace(rule.Category)
	rule.ValidatorKey = strings.TrimSpace(rule.ValidatorKey)
	for i := range rule.Conditions {
		rule.Conditions[i].Field = strings.TrimSpace(rule.Conditions[i].Field)
		rule.Conditions[i].CompareField = strings.TrimSpace(rule.Conditions[i].CompareField)
	}
	fields := make([]string, 0, len(rule.AffectedFields))
	for _, f := range rule.AffectedFields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	rule.AffectedFields = fields
	return rule
}

func (r *Registry) validateRule(rule types.ScoringRule) error {
	if err := validateRuleShape(rule); err != nil {
		return err
	}
	if rule.HasValidator && r.validators != nil && !r.validators.Has(rule.ValidatorKey) {
		return ports.NewValidationError("VALIDATOR_NOT_REGISTERED", "validatorKey "+rule.ValidatorKey+" is not registered")
	}
	return nil
}

// validateRuleShape checks everything that can be checked without the
// validator registry; catalog loading shares it.
func validateRuleShape(rule types.ScoringRule) error {
	if rule.RuleID == "" {
		return ports.NewValidationError("RULE_ID_REQUIRED", "ruleId is required")
	}
	if rule.Name == "" {
		return ports.NewValidationError("RULE_NAME_REQUIRED", "name is required")
	}
	if !rule.Level.Valid() {
		return ports.NewValidationError("RULE_LEVEL_INVALID", "level must be CRITICAL, IMPORTANT, MODERATE or DISCREET")
	}
	if rule.Points < 0 {
		return ports.NewValidationError("RULE_POINTS_NEGATIVE", "points must be >= 0")
	}
	if rule.ProviderTarget == "" {
		return ports.NewValidationError("RULE_PROVIDER_REQUIRED", "providerTarget is required (use ALL for every provider)")
	}
	if len(rule.AffectedFields) == 0 {
		return ports.NewValidationError("RULE_AFFECTED_FIELDS_REQUIRED", "at least one affected field is required")
	}
	for _, cond := range rule.Conditions {
		if cond.Field == "" {
			return ports.NewValidationError("CONDITION_FIELD_REQUIRED", "condition field is required")
		}
	}
	if len(rule.Conditions) > 1 {
		switch rule.LogicOperator {
		case types.LogicAnd, types.LogicOr:
		case "":
			return ports.NewValidationError("LOGIC_OPERATOR_REQUIRED", "logicOperator is required with more than one condition")
		default:
			return ports.NewValidationError("LOGIC_OPERATOR_INVALID", "logicOperator must be AND or OR")
		}
	}
	if rule.HasValidator && rule.ValidatorKey == "" {
		return ports.NewValidationError("VALIDATOR_KEY_REQUIRED", "validatorKey is required when hasValidator is set")
	}
	return nil
}

func applyPatch(rule types.ScoringRule, patch RulePatch) types.ScoringRule {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Level != nil {
		rule.Level = *patch.Level
	}
	if patch.Points != nil {
		rule.Points = *patch.Points
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.ProviderTarget != nil {
		rule.ProviderTarget = *patch.ProviderTarget
	}
	if patch.Category != nil {
		rule.Category = *patch.Category
	}
	if patch.IsCustom != nil {
		rule.IsCustom = *patch.IsCustom
	}
	if patch.Conditions != nil {
		rule.Conditions = append([]types.RuleCondition(nil), (*patch.Conditions)...)
	}
	if patch.LogicOperator != nil {
		rule.LogicOperator = *patch.LogicOperator
	}
	if patch.AffectedFields != nil {
		rule.AffectedFields = append([]string(nil), (*patch.AffectedFields)...)
	}
	if patch.HasValidator != nil {
		rule.HasValidator = *patch.HasValidator
	}
	if patch.ValidatorKey != nil {
		rule.ValidatorKey = *patch.ValidatorKey
	}
	return rule
}
