package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
)

var storedAt = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func storeRule(id string, category string, active bool) types.ScoringRule {
	return types.ScoringRule{
		RuleID:         id,
		Name:           "Regla " + id,
		Level:          types.LevelModerate,
		Points:         5,
		ProviderTarget: types.ProviderAll,
		Category:       category,
		Conditions: []types.RuleCondition{
			{Field: "firma.fecha", Operator: types.OpIsEmpty},
		},
		AffectedFields: []string{"firma.fecha"},
		IsActive:       active,
		CreatedAt:      storedAt,
		UpdatedAt:      storedAt,
	}
}

func entryFor(ruleID string, change types.ChangeType) types.RuleChangeLogEntry {
	return types.RuleChangeLogEntry{
		ID:            ruleID + "-" + string(change),
		RuleID:        ruleID,
		ChangeType:    change,
		CreatedAt:     storedAt,
	}
}

func TestMemoryStoreRuleLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rule := storeRule("ciclo", "firma", true)
	if err := store.CreateRule(ctx, rule, entryFor("ciclo", types.ChangeCreated)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateRule(ctx, rule, entryFor("ciclo", types.ChangeCreated)); !errors.Is(err, ports.ErrRuleExists) {
		t.Fatalf("err=%v want ErrRuleExists", err)
	}

	got, err := store.GetRule(ctx, "ciclo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Regla ciclo" {
		t.Fatalf("got=%+v", got)
	}

	got.Points = 40
	if err := store.UpdateRule(ctx, got, entryFor("ciclo", types.ChangeUpdated)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.GetRule(ctx, "ciclo")
	if got.Points != 40 {
		t.Fatalf("points=%d", got.Points)
	}

	if err := store.SetRuleActive(ctx, "ciclo", false, entryFor("ciclo", types.ChangeDeactivated)); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ = store.GetRule(ctx, "ciclo")
	if got.IsActive {
		t.Fatal("still active")
	}

	if err := store.DeleteRule(ctx, "ciclo", entryFor("ciclo", types.ChangeDeleted)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetRule(ctx, "ciclo"); !errors.Is(err, ports.ErrRuleNotFound) {
		t.Fatalf("err=%v want ErrRuleNotFound", err)
	}
	if err := store.DeleteRule(ctx, "ciclo", entryFor("ciclo", types.ChangeDeleted)); !errors.Is(err, ports.ErrRuleNotFound) {
		t.Fatalf("err=%v want ErrRuleNotFound", err)
	}

	changes, _ := store.ChangesForRule(ctx, "ciclo")
	if len(changes) != 4 {
		t.Fatalf("changes=%d", len(changes))
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rule := storeRule("aislada", "firma", true)
	if err := store.CreateRule(ctx, rule, entryFor("aislada", types.ChangeCreated)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.GetRule(ctx, "aislada")
	got.Conditions[0].Field = "mutado"
	got.AffectedFields[0] = "mutado"

	fresh, _ := store.GetRule(ctx, "aislada")
	if fresh.Conditions[0].Field != "firma.fecha" || fresh.AffectedFields[0] != "firma.fecha" {
		t.Fatalf("stored rule was mutated through a returned copy: %+v", fresh)
	}
}

func TestMemoryStoreListRulesFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seed := []types.ScoringRule{
		storeRule("a_activa", "alfa", true),
		storeRule("b_apagada", "alfa", false),
		storeRule("c_beta", "beta", true),
	}
	metlife := storeRule("d_metlife", "alfa", true)
	metlife.ProviderTarget = "MetLife"
	seed = append(seed, metlife)

	for _, rule := range seed {
		if err := store.CreateRule(ctx, rule, entryFor(rule.RuleID, types.ChangeCreated)); err != nil {
			t.Fatalf("create %s: %v", rule.RuleID, err)
		}
	}

	cases := []struct {
		name   string
		filter ports.RuleFilter
		want   []string
	}{
		{"all", ports.RuleFilter{}, []string{"a_activa", "b_apagada", "c_beta", "d_metlife"}},
		{"active only", ports.RuleFilter{ActiveOnly: true}, []string{"a_activa", "c_beta", "d_metlife"}},
		{"provider GNP", ports.RuleFilter{Provider: "GNP"}, []string{"a_activa", "b_apagada", "c_beta"}},
		{"provider MetLife", ports.RuleFilter{Provider: "MetLife"}, []string{"a_activa", "b_apagada", "c_beta", "d_metlife"}},
		{"category", ports.RuleFilter{Category: "beta"}, []string{"c_beta"}},
		{"combined", ports.RuleFilter{Provider: "GNP", Category: "alfa", ActiveOnly: true}, []string{"a_activa"}},
	}
	for _, tc := range cases {
		rules, err := store.ListRules(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got := make([]string, 0, len(rules))
		for _, rule := range rules {
			got = append(got, rule.RuleID)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got=%v want %v", tc.name, got, tc.want)
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got=%v want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestMemoryStoreVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, found, err := store.LatestVersion(ctx); err != nil || found {
		t.Fatalf("latest on empty store: found=%v err=%v", found, err)
	}

	v1 := types.RuleVersion{ID: "id-1", VersionNumber: 1, RulesHash: "aaaa", CreatedAt: storedAt}
	v2 := types.RuleVersion{ID: "id-2", VersionNumber: 2, RulesHash: "bbbb", CreatedAt: storedAt}
	if err := store.InsertVersion(ctx, v1); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if err := store.InsertVersion(ctx, v2); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if err := store.InsertVersion(ctx, types.RuleVersion{ID: "id-3", VersionNumber: 2}); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("err=%v want ErrVersionConflict", err)
	}

	latest, found, err := store.LatestVersion(ctx)
	if err != nil || !found || latest.VersionNumber != 2 {
		t.Fatalf("latest=%+v found=%v err=%v", latest, found, err)
	}

	byNumber, err := store.GetVersionByNumber(ctx, 1)
	if err != nil || byNumber.ID != "id-1" {
		t.Fatalf("byNumber=%+v err=%v", byNumber, err)
	}
	byID, err := store.GetVersionByID(ctx, "id-2")
	if err != nil || byID.VersionNumber != 2 {
		t.Fatalf("byID=%+v err=%v", byID, err)
	}
	if _, err := store.GetVersionByNumber(ctx, 9); !errors.Is(err, ports.ErrVersionNotFound) {
		t.Fatalf("err=%v want ErrVersionNotFound", err)
	}

	versions, err := store.ListVersions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(versions) != 2 || versions[0].VersionNumber != 2 || versions[1].VersionNumber != 1 {
		t.Fatalf("versions=%+v", versions)
	}
}

func TestMemoryStoreChangeQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	mustUpdate := func(ruleID string, change types.ChangeType, suffix string) {
		t.Helper()
		entry := entryFor(ruleID, change)
		entry.ID = entry.ID + "-" + suffix
		rule, _ := store.GetRule(ctx, ruleID)
		if err := store.UpdateRule(ctx, rule, entry); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	// no snapshot yet: both creates belong to the upcoming v1
	for _, ruleID := range []string{"r1", "r2"} {
		if err := store.CreateRule(ctx, storeRule(ruleID, "c", true), entryFor(ruleID, types.ChangeCreated)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.InsertVersion(ctx, types.RuleVersion{ID: "id-1", VersionNumber: 1, CreatedAt: storedAt}); err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	mustUpdate("r1", types.ChangeUpdated, "a")
	if err := store.InsertVersion(ctx, types.RuleVersion{ID: "id-2", VersionNumber: 2, CreatedAt: storedAt}); err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	mustUpdate("r1", types.ChangeDeactivated, "b")

	recent, err := store.RecentChanges(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ChangeType != types.ChangeDeactivated || recent[1].ChangeType != types.ChangeUpdated {
		t.Fatalf("recent=%+v", recent)
	}

	forRule, err := store.ChangesForRule(ctx, "r1")
	if err != nil || len(forRule) != 3 {
		t.Fatalf("forRule=%+v err=%v", forRule, err)
	}
	wantNumbers := []int{1, 2, 3}
	for i, entry := range forRule {
		if entry.VersionNumber != wantNumbers[i] {
			t.Fatalf("forRule[%d].VersionNumber=%d want %d", i, entry.VersionNumber, wantNumbers[i])
		}
	}

	between, err := store.ChangesBetweenVersions(ctx, 1, 3)
	if err != nil || len(between) != 2 {
		t.Fatalf("between=%+v err=%v", between, err)
	}

	count, err := store.CountChangesAfterVersion(ctx, 1)
	if err != nil || count != 2 {
		t.Fatalf("count=%d err=%v", count, err)
	}
}

// A snapshot landing while a mutation is mid-flight must not claim that
// mutation: the version number is assigned when the rule row commits,
// not when the caller assembled the entry.
func TestMemoryStoreStampsVersionNumberAtCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entry := entryFor("r1", types.ChangeCreated)
	if err := store.InsertVersion(ctx, types.RuleVersion{ID: "id-1", VersionNumber: 1, CreatedAt: storedAt}); err != nil {
		t.Fatalf("insert version: %v", err)
	}
	if err := store.CreateRule(ctx, storeRule("r1", "c", true), entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	changes, err := store.ChangesForRule(ctx, "r1")
	if err != nil || len(changes) != 1 {
		t.Fatalf("changes=%+v err=%v", changes, err)
	}
	if changes[0].VersionNumber != 2 {
		t.Fatalf("versionNumber=%d want 2 (v1 does not contain r1)", changes[0].VersionNumber)
	}
	if count, _ := store.CountChangesAfterVersion(ctx, 1); count != 1 {
		t.Fatalf("count=%d want 1", count)
	}
}
