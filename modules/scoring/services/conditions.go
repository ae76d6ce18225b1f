// Package services implements the scoring engine: condition evaluation,
// named validators, rule evaluation, score aggregation, the rule
// registry, and rule-set versioning.
package services

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/pkg/docvalue"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// regexCache holds compiled condition patterns keyed by source, mirroring
// the compile-once discipline of the validator expressions.
var regexCache sync.Map

// EvaluateCondition applies one declarative condition to the document.
// It never fails: missing fields, unparseable numbers or dates, and
// unknown operators all evaluate to false so that one noisy extraction
// or misconfigured rule cannot abort scoring of the remaining set.
func EvaluateCondition(cond types.RuleCondition, doc docvalue.Value, now time.Time) bool {
	value, found := docvalue.Resolve(doc, cond.Field)

	switch cond.Operator {
	case types.OpIsEmpty:
		return isEmptyValue(value, found)
	case types.OpNotEmpty:
		return !isEmptyValue(value, found)
	case types.OpIsNull:
		return found && value.IsNull()

	case types.OpEquals:
		operand, ok := textOperand(cond, doc)
		return found && ok && value.Text() == operand
	case types.OpNotEquals:
		operand, ok := textOperand(cond, doc)
		return found && ok && value.Text() != operand
	case types.OpContains:
		operand, ok := textOperand(cond, doc)
		return found && ok && strings.Contains(value.Text(), operand)

	case types.OpLessThan:
		left, right, ok := numericOperands(cond, value, found, doc)
		return ok && left < right
	case types.OpGreaterThan:
		left, right, ok := numericOperands(cond, value, found, doc)
		return ok && left > right
	case types.OpLessThanOrEqual:
		left, right, ok := numericOperands(cond, value, found, doc)
		return ok && left <= right

	case types.OpRegex:
		return found && matchFullPattern(cond.Value, value.Text())
	case types.OpIsNumber:
		if !found {
			return false
		}
		_, ok := value.Number()
		return ok
	case types.OpIsEmail:
		return found && emailPattern.MatchString(strings.TrimSpace(value.Text()))

	case types.OpDateAfter:
		date, operand, ok := dateOperands(cond, value, found, doc, now)
		return ok && date.After(operand)
	case types.OpDateBefore:
		date, operand, ok := dateOperands(cond, value, found, doc, now)
		return ok && date.Before(operand)
	case types.OpDateOlderThanMonths:
		if !found {
			return false
		}
		date, ok := parseRuleDate(value.Text())
		if !ok {
			return false
		}
		months, err := strconv.Atoi(strings.TrimSpace(cond.Value))
		if err != nil || months < 0 {
			return false
		}
		return !date.AddDate(0, months, 0).After(dayOf(now))

	case types.OpArrayEmpty:
		if !found {
			return true
		}
		items, ok := value.Array()
		return ok && len(items) == 0
	case types.OpArrayLengthGreaterThan:
		if !found {
			return false
		}
		items, ok := value.Array()
		if !ok {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(cond.Value))
		if err != nil {
			return false
		}
		return len(items) > n
	case types.OpArrayContainsNone:
		if !found {
			return false
		}
		items, ok := value.Array()
		if !ok {
			return false
		}
		return countReferenceHits(items, cond.Value) == 0
	case types.OpArrayMutuallyExclusive:
		if !found {
			return false
		}
		items, ok := value.Array()
		if !ok {
			return false
		}
		return countReferenceHits(items, cond.Value) >= 2

	default:
		slog.Warn("unknown condition operator",
			"operator", string(cond.Operator), "field", cond.Field)
		return false
	}
}

// isEmptyValue: absent node, explicit null, or blank string.
func isEmptyValue(value docvalue.Value, found bool) bool {
	if !found || value.IsNull() {
		return true
	}
	if value.Kind() == docvalue.KindString {
		return strings.TrimSpace(value.Text()) == ""
	}
	return false
}

// textOperand resolves the right-hand side of a string comparison:
// the literal value, or the stringified compareField node.
func textOperand(cond types.RuleCondition, doc docvalue.Value) (string, bool) {
	if cond.CompareField != "" {
		other, ok := docvalue.Resolve(doc, cond.CompareField)
		if !ok {
			return "", false
		}
		return other.Text(), true
	}
	return cond.Value, true
}

func numericOperands(cond types.RuleCondition, value docvalue.Value, found bool, doc docvalue.Value) (float64, float64, bool) {
	if !found {
		return 0, 0, false
	}
	left, ok := value.Number()
	if !ok {
		return 0, 0, false
	}
	if cond.CompareField != "" {
		other, ok := docvalue.Resolve(doc, cond.CompareField)
		if !ok {
			return 0, 0, false
		}
		right, ok := other.Number()
		if !ok {
			return 0, 0, false
		}
		return left, right, true
	}
	right, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
	if err != nil {
		return 0, 0, false
	}
	return left, right, true
}

// dateOperands resolves the field date and the reference date (literal,
// the TODAY sentinel, or a compareField). Unparseable on either side
// disarms the condition: a rule cannot assert about a date it cannot read.
func dateOperands(cond types.RuleCondition, value docvalue.Value, found bool, doc docvalue.Value, now time.Time) (time.Time, time.Time, bool) {
	if !found {
		return time.Time{}, time.Time{}, false
	}
	date, ok := parseRuleDate(value.Text())
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if cond.CompareField != "" {
		other, ok := docvalue.Resolve(doc, cond.CompareField)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		operand, ok := parseRuleDate(other.Text())
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		return date, operand, true
	}
	if strings.EqualFold(strings.TrimSpace(cond.Value), types.TodaySentinel) {
		return date, dayOf(now), true
	}
	operand, ok := parseRuleDate(cond.Value)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return date, operand, true
}

func parseRuleDate(raw string) (time.Time, bool) {
	t, err := time.Parse(types.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func matchFullPattern(pattern string, text string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp).MatchString(text)
	}
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		slog.Warn("invalid condition pattern", "pattern", pattern, "error", err)
		return false
	}
	regexCache.Store(pattern, re)
	return re.MatchString(text)
}

// countReferenceHits counts how many of the comma-separated reference
// values appear in the resolved array (duplicates count once).
func countReferenceHits(items []docvalue.Value, csv string) int {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[strings.TrimSpace(item.Text())] = true
	}
	hits := 0
	for _, ref := range strings.Split(csv, ",") {
		ref = strings.TrimSpace(ref)
		if ref != "" && present[ref] {
			hits++
		}
	}
	return hits
}
