package services

import (
	"context"
	"errors"
	"time"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/pkg/metrics"
	"github.com/auditmed/report-scoring/pkg/uuidv7"
)

// versionCreateAttempts bounds the compare-and-swap loop when two
// editors race to mint the next version number.
const versionCreateAttempts = 3

// Versioning owns the immutable snapshots of the rule set. A snapshot
// is created only when the canonical fingerprint of the active rules
// differs from the latest stored one; otherwise the stored version is
// returned unchanged, so CreateVersion is idempotent.
type Versioning struct {
	store     ports.Store
	collector *metrics.Collector
	now       func() time.Time
}

func NewVersioning(store ports.Store, collector *metrics.Collector) *Versioning {
	return &Versioning{store: store, collector: collector, now: time.Now}
}

// ChangeCheck reports whether the active rule set drifted from a
// historical version, and how many audited changes happened since.
type ChangeCheck struct {
	Changed      bool   `json:"changed"`
	CurrentHash  string `json:"currentHash"`
	VersionHash  string `json:"versionHash"`
	ChangesSince int    `json:"changesSince"`
}

// CreateVersion snapshots the active rule set if its fingerprint moved.
// The insert races under a unique version number; a conflict means a
// concurrent editor won, so recompute and retry.
func (v *Versioning) CreateVersion(ctx context.Context, description string) (types.RuleVersion, error) {
	for attempt := 0; attempt < versionCreateAttempts; attempt++ {
		rules, err := v.store.ListRules(ctx, ports.RuleFilter{ActiveOnly: true})
		if err != nil {
			return types.RuleVersion{}, err
		}
		hash := types.RulesFingerprint(rules)

		latest, found, err := v.store.LatestVersion(ctx)
		if err != nil {
			return types.RuleVersion{}, err
		}
		if found && latest.RulesHash == hash {
			return latest, nil
		}

		number := 1
		if found {
			number = latest.VersionNumber + 1
		}
		id, err := uuidv7.NewString()
		if err != nil {
			return types.RuleVersion{}, err
		}
		version := types.RuleVersion{
			ID:            id,
			VersionNumber: number,
			RulesSnapshot: orderRules(rules),
			RulesHash:     hash,
			Description:   description,
			CreatedAt:     v.now().UTC(),
		}
		err = v.store.InsertVersion(ctx, version)
		if errors.Is(err, ports.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return types.RuleVersion{}, err
		}
		if v.collector != nil {
			v.collector.RecordVersionCreated()
		}
		return version, nil
	}
	return types.RuleVersion{}, ports.ErrTransientStorage
}

// Current returns the latest stored snapshot without creating one.
func (v *Versioning) Current(ctx context.Context) (types.RuleVersion, error) {
	latest, found, err := v.store.LatestVersion(ctx)
	if err != nil {
		return types.RuleVersion{}, err
	}
	if !found {
		return types.RuleVersion{}, ports.ErrVersionNotFound
	}
	return latest, nil
}

func (v *Versioning) ByNumber(ctx context.Context, number int) (types.RuleVersion, error) {
	return v.store.GetVersionByNumber(ctx, number)
}

func (v *Versioning) ByID(ctx context.Context, id string) (types.RuleVersion, error) {
	return v.store.GetVersionByID(ctx, id)
}

func (v *Versioning) ListAll(ctx context.Context) ([]types.RuleVersion, error) {
	return v.store.ListVersions(ctx)
}

// CheckIfChanged recomputes the active fingerprint and compares it to a
// historical version, counting the change-log entries recorded after it.
func (v *Versioning) CheckIfChanged(ctx context.Context, fromVersionID string) (ChangeCheck, error) {
	version, err := v.store.GetVersionByID(ctx, fromVersionID)
	if err != nil {
		return ChangeCheck{}, err
	}
	rules, err := v.store.ListRules(ctx, ports.RuleFilter{ActiveOnly: true})
	if err != nil {
		return ChangeCheck{}, err
	}
	currentHash := types.RulesFingerprint(rules)
	changes, err := v.store.CountChangesAfterVersion(ctx, version.VersionNumber)
	if err != nil {
		return ChangeCheck{}, err
	}
	return ChangeCheck{
		Changed:      currentHash != version.RulesHash,
		CurrentHash:  currentHash,
		VersionHash:  version.RulesHash,
		ChangesSince: changes,
	}, nil
}

// ChangesBetween returns every audited change with
// fromVersion < versionNumber <= toVersion.
func (v *Versioning) ChangesBetween(ctx context.Context, fromVersion int, toVersion int) ([]types.RuleChangeLogEntry, error) {
	return v.store.ChangesBetweenVersions(ctx, fromVersion, toVersion)
}
