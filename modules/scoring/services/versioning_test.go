package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/modules/scoring/infrastructure/persistence"
)

func newTestVersioning() (*Versioning, *Registry, *persistence.MemoryStore) {
	store := persistence.NewMemoryStore()
	reg := NewRegistry(store, NewValidators())
	reg.now = func() time.Time { return evalNow }
	ver := NewVersioning(store, nil)
	ver.now = func() time.Time { return evalNow }
	return ver, reg, store
}

func TestCreateVersionSnapshotsActiveRules(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("activa"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	inactive := baseRule("apagada")
	inactive.IsActive = false
	if _, err := reg.Create(ctx, inactive, ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	version, err := ver.CreateVersion(ctx, "corte inicial")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if version.VersionNumber != 1 {
		t.Fatalf("versionNumber=%d", version.VersionNumber)
	}
	if version.ID == "" || version.Description != "corte inicial" {
		t.Fatalf("version=%+v", version)
	}
	if len(version.RulesSnapshot) != 1 || version.RulesSnapshot[0].RuleID != "activa" {
		t.Fatalf("snapshot=%+v", version.RulesSnapshot)
	}
	if len(version.RulesHash) != 16 {
		t.Fatalf("hash=%q", version.RulesHash)
	}
}

func TestCreateVersionIdempotentWhileUnchanged(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("estable"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := ver.CreateVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := ver.CreateVersion(ctx, "otro intento")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.VersionNumber != first.VersionNumber || second.ID != first.ID {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	versions, _ := ver.ListAll(ctx)
	if len(versions) != 1 {
		t.Fatalf("versions=%d", len(versions))
	}
}

func TestCreateVersionAdvancesAfterRuleChange(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("evoluciona"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := ver.CreateVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("v1: %v", err)
	}

	points := 30
	if _, err := reg.Update(ctx, "evoluciona", RulePatch{Points: &points}, ChangeMeta{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := ver.CreateVersion(ctx, "v2")
	if err != nil {
		t.Fatalf("v2: %v", err)
	}
	if second.VersionNumber != first.VersionNumber+1 {
		t.Fatalf("versionNumber=%d want %d", second.VersionNumber, first.VersionNumber+1)
	}
	if second.RulesHash == first.RulesHash {
		t.Fatal("hash did not move after rule change")
	}
}

// conflictStore makes the first n InsertVersion calls lose the race.
type conflictStore struct {
	ports.Store
	remaining int
}

func (s *conflictStore) InsertVersion(ctx context.Context, version types.RuleVersion) error {
	if s.remaining > 0 {
		s.remaining--
		return ports.ErrVersionConflict
	}
	return s.Store.InsertVersion(ctx, version)
}

func TestCreateVersionRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	_, reg, mem := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("disputada"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ver := NewVersioning(&conflictStore{Store: mem, remaining: 2}, nil)
	version, err := ver.CreateVersion(ctx, "tras reintentos")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if version.VersionNumber != 1 {
		t.Fatalf("versionNumber=%d", version.VersionNumber)
	}
}

func TestCreateVersionGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	_, reg, mem := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("bloqueada"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ver := NewVersioning(&conflictStore{Store: mem, remaining: versionCreateAttempts}, nil)
	_, err := ver.CreateVersion(ctx, "nunca entra")
	if !errors.Is(err, ports.ErrTransientStorage) {
		t.Fatalf("err=%v want ErrTransientStorage", err)
	}
}

func TestCurrentWithoutVersions(t *testing.T) {
	ver, _, _ := newTestVersioning()
	_, err := ver.Current(context.Background())
	if !errors.Is(err, ports.ErrVersionNotFound) {
		t.Fatalf("err=%v want ErrVersionNotFound", err)
	}
}

func TestCheckIfChanged(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("vigilada"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	version, err := ver.CreateVersion(ctx, "base")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	check, err := ver.CheckIfChanged(ctx, version.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.Changed || check.CurrentHash != version.RulesHash || check.ChangesSince != 0 {
		t.Fatalf("check=%+v", check)
	}

	points := 50
	if _, err := reg.Update(ctx, "vigilada", RulePatch{Points: &points}, ChangeMeta{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	check, err = ver.CheckIfChanged(ctx, version.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.Changed || check.ChangesSince != 1 {
		t.Fatalf("check=%+v", check)
	}
	if check.VersionHash != version.RulesHash || check.CurrentHash == version.RulesHash {
		t.Fatalf("check=%+v", check)
	}
}

func TestChangesBetweenVersions(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("hito"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ver.CreateVersion(ctx, "v1"); err != nil {
		t.Fatalf("v1: %v", err)
	}

	points := 12
	if _, err := reg.Update(ctx, "hito", RulePatch{Points: &points}, ChangeMeta{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := reg.Deactivate(ctx, "hito", ChangeMeta{}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := ver.CreateVersion(ctx, "v2"); err != nil {
		t.Fatalf("v2: %v", err)
	}

	between, err := ver.ChangesBetween(ctx, 1, 2)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(between) != 2 {
		t.Fatalf("between=%d", len(between))
	}
	for _, entry := range between {
		if entry.VersionNumber != 2 {
			t.Fatalf("entry=%+v", entry)
		}
	}
}

func TestVersionLookups(t *testing.T) {
	ctx := context.Background()
	ver, reg, _ := newTestVersioning()

	if _, err := reg.Create(ctx, baseRule("buscable"), ChangeMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	created, err := ver.CreateVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	byNumber, err := ver.ByNumber(ctx, created.VersionNumber)
	if err != nil || byNumber.ID != created.ID {
		t.Fatalf("byNumber=%+v err=%v", byNumber, err)
	}
	byID, err := ver.ByID(ctx, created.ID)
	if err != nil || byID.VersionNumber != created.VersionNumber {
		t.Fatalf("byID=%+v err=%v", byID, err)
	}
	if _, err := ver.ByNumber(ctx, 99); !errors.Is(err, ports.ErrVersionNotFound) {
		t.Fatalf("err=%v want ErrVersionNotFound", err)
	}
}
