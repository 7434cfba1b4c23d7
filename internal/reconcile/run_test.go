package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/registry"
)

const fixtureSnapshot = `Unique Account ID,Account Name,Type,Current Balance,Currency
rbc-chq-001,RBC Chequing,Chequing,150.00,CAD
`

const fixtureBatch = `Unique Transaction ID,Unique Account ID,Account Name,Date,Description,Payee,Payee Name,Amount,Currency,Category,Is Transfer,Notes
tx-001,rbc-chq-001,RBC Chequing,2025-07-02,PAYROLL DEPOSIT,,Employer Inc,90.00,CAD,,false,
tx-002,rbc-chq-001,RBC Chequing,2025-07-05,METRO #123,Metro,,50.00,CAD,Groceries,false,
`

const fixtureCategories = `groups:
  - name: Usual Expenses
    categories:
      - name: Groceries
`

const fixtureRules = `rules:
  - conditions:
      - field: payee
        op: is
        value: Metro
    actions:
      - field: category
        value: Groceries
`

// writeFixtureConfig lays out a config dir with one institution export, a
// category document and a rule document.
func writeFixtureConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		InputDir:     filepath.Join(dir, "transactions"),
		RegistryPath: filepath.Join(dir, "account_map.json"),
		CategoryPath: filepath.Join(dir, "categories.yaml"),
		RulesPath:    filepath.Join(dir, "rules.yaml"),
		Currency:     "CAD",
		Institutions: map[string]config.InstitutionConfig{},
	}

	instDir := filepath.Join(cfg.InputDir, "rbc")
	require.NoError(t, os.MkdirAll(instDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(instDir, "accounts.csv"), []byte(fixtureSnapshot), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(instDir, "2025-07.csv"), []byte(fixtureBatch), 0o644))
	require.NoError(t, os.WriteFile(cfg.CategoryPath, []byte(fixtureCategories), 0o644))
	require.NoError(t, os.WriteFile(cfg.RulesPath, []byte(fixtureRules), 0o644))
	return cfg
}

func runOnce(t *testing.T, cfg *config.Config, svc *fakeService) Summary {
	t.Helper()

	ctx := context.Background()
	r := NewRunner(cfg, svc, registry.Load(ctx, cfg.RegistryPath), false)
	r.now = func() time.Time { return time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC) }

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	return summary
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := writeFixtureConfig(t)
	svc := newFakeService()

	summary := runOnce(t, cfg, svc)

	assert.Equal(t, 1, summary.AccountsCreated)
	assert.Equal(t, 1, summary.PayeesCreated, "payee referenced by a rule condition must be created")
	assert.Equal(t, 1, summary.GroupsCreated)
	assert.Equal(t, 1, summary.CategoriesCreated)
	assert.Equal(t, 2, summary.TransactionsAdded)
	assert.Equal(t, 1, summary.RulesCreated)
	assert.Equal(t, 0, summary.Warnings)

	// Snapshot says 150.00, the batch sums to 140.00; the newly created
	// account gets a 10.00 opening adjustment.
	assert.Equal(t, 1, summary.AdjustmentsCreated)
	assert.Equal(t, 0, summary.BalanceMismatches)
	assert.Equal(t, 3, svc.transactionCount())

	// The rule action id was resolved and the assigned rule id written back.
	persisted, err := LoadRuleFile(cfg.RulesPath)
	require.NoError(t, err)
	require.Len(t, persisted.Rules, 1)
	assert.NotEmpty(t, persisted.Rules[0].RemoteID)
	assert.NotEmpty(t, persisted.Rules[0].Actions[0].ID)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	cfg := writeFixtureConfig(t)
	svc := newFakeService()

	runOnce(t, cfg, svc)
	firstTxns := svc.transactionCount()
	firstCreates := svc.calls["CreateAccount"]

	summary := runOnce(t, cfg, svc)

	assert.Equal(t, 0, summary.AccountsCreated)
	assert.Equal(t, 0, summary.PayeesCreated)
	assert.Equal(t, 0, summary.GroupsCreated)
	assert.Equal(t, 0, summary.CategoriesCreated)
	assert.Equal(t, 0, summary.TransactionsAdded)
	assert.Equal(t, 0, summary.TransactionsUpdated)
	assert.Equal(t, 0, summary.AdjustmentsCreated)
	assert.Equal(t, 0, summary.BalanceMismatches)
	assert.Equal(t, 0, summary.RulesCreated)
	assert.Equal(t, 0, summary.RulesUpdated)
	assert.Equal(t, 0, summary.Warnings)

	assert.Equal(t, firstTxns, svc.transactionCount())
	assert.Equal(t, firstCreates, svc.calls["CreateAccount"])
	assert.Equal(t, 0, svc.calls["UpdateRule"])
}

func TestRun_DryRunLeavesLocalStateUntouched(t *testing.T) {
	cfg := writeFixtureConfig(t)
	svc := newFakeService()

	fixtureRulesBefore, err := os.ReadFile(cfg.RulesPath)
	require.NoError(t, err)

	ctx := context.Background()
	r := NewRunner(cfg, ledger.NewDryRun(svc), registry.Load(ctx, cfg.RegistryPath), false)
	r.now = func() time.Time { return time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC) }
	r.SetDryRun(true)

	summary, err := r.Run(ctx)
	require.NoError(t, err)

	// The preview reports what a real run would do.
	assert.Equal(t, 1, summary.AccountsCreated)
	assert.Equal(t, 1, summary.PayeesCreated)
	assert.Equal(t, 1, summary.RulesCreated)
	assert.Equal(t, 1, summary.AdjustmentsCreated)

	// Nothing reached the remote.
	assert.Equal(t, 0, svc.calls["CreateAccount"])
	assert.Equal(t, 0, svc.calls["CreatePayee"])
	assert.Equal(t, 0, svc.calls["CreateRule"])
	assert.Equal(t, 0, svc.transactionCount())

	// Placeholder ids stay in memory: no registry file, no document rewrite.
	_, err = os.Stat(cfg.RegistryPath)
	assert.True(t, os.IsNotExist(err), "registry file was written during dry run")

	rulesAfter, err := os.ReadFile(cfg.RulesPath)
	require.NoError(t, err)
	assert.Equal(t, string(fixtureRulesBefore), string(rulesAfter), "rule document was rewritten during dry run")
	assert.NotContains(t, string(rulesAfter), "dry-run-")

	// A real run afterwards starts from a clean slate.
	summary = runOnce(t, cfg, svc)
	assert.Equal(t, 1, summary.AccountsCreated)
	assert.Equal(t, 2, summary.TransactionsAdded)
	assert.Equal(t, 0, summary.Warnings)
}

func TestRun_InstitutionFilterSkipsOthers(t *testing.T) {
	cfg := writeFixtureConfig(t)
	svc := newFakeService()

	ctx := context.Background()
	r := NewRunner(cfg, svc, registry.Load(ctx, cfg.RegistryPath), false)
	r.now = func() time.Time { return time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC) }
	r.SetInstitutionFilter("tangerine")

	summary, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.AccountsCreated)
	assert.Equal(t, 0, summary.TransactionsAdded)
}
