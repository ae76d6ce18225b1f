package services

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

// Catalog is a versioned YAML file of rule definitions, the seed format
// an initial rule set ships in.
type Catalog struct {
	Version int                 `yaml:"version"`
	Rules   []types.ScoringRule `yaml:"rules"`
}

// ParseCatalogYAML decodes and shape-validates a rule catalog. Whether
// referenced validator keys are registered is checked later, at create
// time, because catalogs are parsed before validators are wired.
func ParseCatalogYAML(raw []byte) ([]types.ScoringRule, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, err
	}
	if catalog.Version != 1 {
		return nil, errors.New("catalog: unsupported version")
	}
	if len(catalog.Rules) == 0 {
		return nil, errors.New("catalog: no rules")
	}
	seen := make(map[string]bool, len(catalog.Rules))
	rules := make([]types.ScoringRule, 0, len(catalog.Rules))
	for i, rule := range catalog.Rules {
		rule = normalizeRule(rule)
		if err := validateRuleShape(rule); err != nil {
			return nil, fmt.Errorf("catalog: rule %d (%s): %w", i, rule.RuleID, err)
		}
		if seen[rule.RuleID] {
			return nil, fmt.Errorf("catalog: duplicate ruleId %s", rule.RuleID)
		}
		seen[rule.RuleID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

func LoadCatalog(path string) ([]types.ScoringRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalogYAML(raw)
}
