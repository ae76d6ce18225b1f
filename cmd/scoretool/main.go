package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auditmed/report-scoring/modules/scoring/domain/ports"
	"github.com/auditmed/report-scoring/modules/scoring/domain/types"
	"github.com/auditmed/report-scoring/modules/scoring/infrastructure/persistence"
	"github.com/auditmed/report-scoring/modules/scoring/services"
	"github.com/auditmed/report-scoring/pkg/docvalue"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: scoretool <score|seed|version-create|versions|changes|check-changed> [args]")
	}

	switch os.Args[1] {
	case "score":
		scoreCmd(os.Args[2:])
	case "seed":
		seedCmd(os.Args[2:])
	case "version-create":
		versionCreateCmd(os.Args[2:])
	case "versions":
		versionsCmd(os.Args[2:])
	case "changes":
		changesCmd(os.Args[2:])
	case "check-changed":
		checkChangedCmd(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// scoreCmd evaluates one document against a rule catalog, entirely
// offline: no database, the catalog file is the rule set.
func scoreCmd(args []string) {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var rulesPath, docPath, provider string
	var previous int
	var hasPrevious bool
	fs.StringVar(&rulesPath, "rules", "seed/rules.yaml", "rule catalog file")
	fs.StringVar(&docPath, "doc", "", "extracted document (JSON)")
	fs.StringVar(&provider, "provider", "", "provider code (GNP, MetLife, ...)")
	fs.IntVar(&previous, "previous", 0, "previous score, if re-evaluating")
	fs.BoolVar(&hasPrevious, "has-previous", false, "set when --previous carries a real score")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if docPath == "" {
		fatalf("missing --doc")
	}
	if provider == "" {
		fatalf("missing --provider")
	}

	rules, err := services.LoadCatalog(rulesPath)
	if err != nil {
		fatal(err)
	}
	raw, err := os.ReadFile(docPath)
	if err != nil {
		fatal(err)
	}
	doc, err := docvalue.FromJSON(raw)
	if err != nil {
		fatal(err)
	}

	scorer := services.NewScorer(builtinValidators(), nil)
	var previousScore *int
	if hasPrevious {
		previousScore = &previous
	}
	result := scorer.Evaluate(rules, doc, provider, previousScore)
	printJSON(result)
}

// seedCmd loads a rule catalog into Postgres through the registry, so
// every seeded rule gets a change-log entry. Rules that already exist
// are skipped, which makes re-running the seed safe.
func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var rulesPath, url, changedBy string
	fs.StringVar(&rulesPath, "rules", "seed/rules.yaml", "rule catalog file")
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&changedBy, "by", "seed", "changedBy recorded in the change log")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	rules, err := services.LoadCatalog(rulesPath)
	if err != nil {
		fatal(err)
	}

	ctx, cancel, store := connectStore(url)
	defer cancel()

	registry := services.NewRegistry(store, builtinValidators())
	seeded, skipped := 0, 0
	for _, rule := range rules {
		_, err := registry.Create(ctx, rule, services.ChangeMeta{ChangedBy: changedBy, Reason: "initial catalog"})
		if errors.Is(err, ports.ErrRuleExists) {
			skipped++
			continue
		}
		if err != nil {
			fatalf("seed %s: %v", rule.RuleID, err)
		}
		seeded++
	}
	fmt.Printf("seeded %d rules, skipped %d existing\n", seeded, skipped)
}

func versionCreateCmd(args []string) {
	fs := flag.NewFlagSet("version-create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, description string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&description, "description", "", "snapshot description")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx, cancel, store := connectStore(url)
	defer cancel()

	version, err := services.NewVersioning(store, nil).CreateVersion(ctx, description)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("version %d (%s) hash=%s rules=%d\n",
		version.VersionNumber, version.ID, version.RulesHash, len(version.RulesSnapshot))
}

func versionsCmd(args []string) {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx, cancel, store := connectStore(url)
	defer cancel()

	versions, err := services.NewVersioning(store, nil).ListAll(ctx)
	if err != nil {
		fatal(err)
	}
	for _, v := range versions {
		fmt.Printf("v%d  %s  hash=%s  rules=%d  %s\n",
			v.VersionNumber, v.CreatedAt.Format(time.RFC3339), v.RulesHash,
			len(v.RulesSnapshot), v.Description)
	}
}

func changesCmd(args []string) {
	fs := flag.NewFlagSet("changes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, ruleID string
	var limit int
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&ruleID, "rule", "", "restrict to one ruleId")
	fs.IntVar(&limit, "limit", 0, "max entries (default 50)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx, cancel, store := connectStore(url)
	defer cancel()

	log := services.NewChangeLog(store)
	var entries []types.RuleChangeLogEntry
	var err error
	if ruleID != "" {
		entries, err = log.ForRule(ctx, ruleID)
	} else {
		entries, err = log.Recent(ctx, limit)
	}
	if err != nil {
		fatal(err)
	}
	for _, e := range entries {
		fmt.Printf("%s  v%d  %-12s %s  by=%s  %s\n",
			e.CreatedAt.Format(time.RFC3339), e.VersionNumber, e.ChangeType,
			e.RuleID, e.ChangedBy, e.ChangeReason)
	}
}

func checkChangedCmd(args []string) {
	fs := flag.NewFlagSet("check-changed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, versionID string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&versionID, "version-id", "", "version to compare against")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if versionID == "" {
		fatalf("missing --version-id")
	}

	ctx, cancel, store := connectStore(url)
	defer cancel()

	check, err := services.NewVersioning(store, nil).CheckIfChanged(ctx, versionID)
	if err != nil {
		fatal(err)
	}
	printJSON(check)
}

func connectStore(url string) (context.Context, context.CancelFunc, ports.Store) {
	if url == "" {
		fatalf("missing --url")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		cancel()
		fatal(err)
	}
	return ctx, func() { pool.Close(); cancel() }, persistence.NewPGStore(pool)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
