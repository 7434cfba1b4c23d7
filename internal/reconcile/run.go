package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/export"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/registry"
)

// Summary counts what a run did, for the closing log line.
type Summary struct {
	AccountsCreated     int
	PayeesCreated       int
	GroupsCreated       int
	CategoriesCreated   int
	CategoriesUpdated   int
	TransactionsAdded   int
	TransactionsUpdated int
	AdjustmentsCreated  int
	BalanceMismatches   int
	RulesPulled         int
	RulesCreated        int
	RulesUpdated        int
	Warnings            int
}

// Runner executes one full reconciliation pass. All state here is run-scoped
// except the identity registry, which persists across runs.
type Runner struct {
	cfg *config.Config
	svc ledger.Service
	reg *registry.Registry

	lookups *Lookups

	// created holds external account keys whose remote account was created
	// during this run; only these are eligible for balance adjustment.
	created map[string]bool

	// expected holds the snapshot balance (minor units) per external key.
	expected map[string]int64

	// earliest holds the minimum imported transaction date per external key.
	earliest map[string]time.Time

	forceFresh bool
	only       string
	now        func() time.Time

	// dryRun suppresses all local persistence: no registry writes and no
	// rule or category document rewrites. dryMapped stands in for the
	// registry so later stages can still preview accounts created this run.
	dryRun    bool
	dryMapped map[string]string

	summary Summary
}

// NewRunner wires a Runner. forceFresh clears all locally stored rule ids
// before the rule sync pass.
func NewRunner(cfg *config.Config, svc ledger.Service, reg *registry.Registry, forceFresh bool) *Runner {
	return &Runner{
		cfg:        cfg,
		svc:        svc,
		reg:        reg,
		created:    map[string]bool{},
		expected:   map[string]int64{},
		earliest:   map[string]time.Time{},
		forceFresh: forceFresh,
		now:        time.Now,
		dryMapped:  map[string]string{},
	}
}

// SetInstitutionFilter limits the run to a single institution directory.
func (r *Runner) SetInstitutionFilter(name string) {
	r.only = name
}

// SetDryRun disables all local persistence. Paired with ledger.DryRun this
// makes a run pure preview: placeholder ids stay in memory and never reach
// the registry file or the rule and category documents.
func (r *Runner) SetDryRun(enabled bool) {
	r.dryRun = enabled
}

// recordMapping persists an external-key mapping, or holds it in memory for
// the rest of the run when persistence is disabled.
func (r *Runner) recordMapping(ctx context.Context, externalKey, remoteID string) error {
	if r.dryRun {
		r.dryMapped[externalKey] = remoteID
		return nil
	}
	return r.reg.Record(ctx, externalKey, remoteID)
}

// resolveMapping resolves an external key against the registry plus any
// mappings held in memory during a dry run.
func (r *Runner) resolveMapping(externalKey string) (string, bool) {
	if id, ok := r.reg.Resolve(externalKey); ok {
		return id, true
	}
	id, ok := r.dryMapped[externalKey]
	return id, ok
}

// Run executes the pipeline. Stage order is fixed: accounts for an
// institution are resolved and committed before its batches are imported, all
// imports finish before balance reconciliation, and rules go last so their
// actions can reference anything created earlier. Each stage commits via
// Sync before the next begins.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	institutions, err := export.ReadDir(ctx, r.cfg.InputDir, r.only)
	if err != nil {
		return r.summary, fmt.Errorf("reconcile: reading exports: %w", err)
	}

	r.lookups, err = BuildLookups(ctx, r.svc)
	if err != nil {
		return r.summary, fmt.Errorf("reconcile: %w", err)
	}

	rules, err := LoadRuleFile(r.cfg.RulesPath)
	if err != nil {
		return r.summary, fmt.Errorf("reconcile: %w", err)
	}

	if err := r.SyncCategories(ctx); err != nil {
		return r.summary, fmt.Errorf("reconcile: %w", err)
	}
	if err := r.commit(ctx, "categories"); err != nil {
		return r.summary, err
	}

	if err := r.ResolvePayees(ctx, rules); err != nil {
		return r.summary, fmt.Errorf("reconcile: %w", err)
	}
	if err := r.commit(ctx, "payees"); err != nil {
		return r.summary, err
	}

	for _, inst := range institutions {
		r.ReconcileAccounts(ctx, inst)
	}
	if err := r.commit(ctx, "accounts"); err != nil {
		return r.summary, err
	}

	for _, inst := range institutions {
		r.ImportBatches(ctx, inst)
	}
	if err := r.commit(ctx, "transactions"); err != nil {
		return r.summary, err
	}

	r.ReconcileBalances(ctx)
	if err := r.commit(ctx, "balances"); err != nil {
		return r.summary, err
	}

	if err := r.SyncRules(ctx, rules); err != nil {
		return r.summary, fmt.Errorf("reconcile: %w", err)
	}
	if err := r.commit(ctx, "rules"); err != nil {
		return r.summary, err
	}

	log.Info().
		Int("accounts_created", r.summary.AccountsCreated).
		Int("payees_created", r.summary.PayeesCreated).
		Int("groups_created", r.summary.GroupsCreated).
		Int("categories_created", r.summary.CategoriesCreated).
		Int("transactions_added", r.summary.TransactionsAdded).
		Int("transactions_updated", r.summary.TransactionsUpdated).
		Int("adjustments_created", r.summary.AdjustmentsCreated).
		Int("balance_mismatches", r.summary.BalanceMismatches).
		Int("rules_pulled", r.summary.RulesPulled).
		Int("rules_created", r.summary.RulesCreated).
		Int("rules_updated", r.summary.RulesUpdated).
		Int("warnings", r.summary.Warnings).
		Dur("elapsed", time.Since(start)).
		Msg("Reconciliation completed")

	return r.summary, nil
}

// commit flushes pending remote mutations after a stage.
func (r *Runner) commit(ctx context.Context, stage string) error {
	log := logger.FromContext(ctx)
	if err := r.svc.Sync(ctx); err != nil {
		return fmt.Errorf("reconcile: committing %s stage: %w", stage, err)
	}
	log.Debug().Str("stage", stage).Msg("Stage committed")
	return nil
}

// warn logs an entity-scoped failure and keeps the run going.
func (r *Runner) warn(ctx context.Context, err error, msg string, fields map[string]string) {
	log := logger.FromContext(ctx)
	event := log.Warn().Err(err)
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg(msg)
	r.summary.Warnings++
}
