package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/registry"
)

// fakeService is an in-memory ledger.Service. It keeps real entity state so
// that repeated runs exercise the same convergence the remote service would,
// and counts calls per method so tests can assert on remote traffic.
type fakeService struct {
	accounts []ledger.Account
	payees   []ledger.Payee
	groups   []ledger.CategoryGroup
	rules    []ledger.Rule

	// txns maps account id -> imported id -> transaction.
	txns map[string]map[string]ledger.Transaction

	calls  map[string]int
	nextID int
}

func newFakeService() *fakeService {
	return &fakeService{
		txns:  map[string]map[string]ledger.Transaction{},
		calls: map[string]int{},
	}
}

func (f *fakeService) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%04d", prefix, f.nextID)
}

func (f *fakeService) Accounts(ctx context.Context) ([]ledger.Account, error) {
	f.calls["Accounts"]++
	return append([]ledger.Account(nil), f.accounts...), nil
}

func (f *fakeService) CreateAccount(ctx context.Context, account ledger.Account) (string, error) {
	f.calls["CreateAccount"]++
	account.ID = f.genID("acct")
	f.accounts = append(f.accounts, account)
	return account.ID, nil
}

func (f *fakeService) UpdateAccount(ctx context.Context, account ledger.Account) error {
	f.calls["UpdateAccount"]++
	for i := range f.accounts {
		if f.accounts[i].ID == account.ID {
			f.accounts[i] = account
			return nil
		}
	}
	return fmt.Errorf("account %s not found", account.ID)
}

func (f *fakeService) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	f.calls["AccountBalance"]++
	var total int64
	for _, tx := range f.txns[accountID] {
		total += tx.Amount
	}
	return total, nil
}

func (f *fakeService) Payees(ctx context.Context) ([]ledger.Payee, error) {
	f.calls["Payees"]++
	return append([]ledger.Payee(nil), f.payees...), nil
}

func (f *fakeService) CreatePayee(ctx context.Context, name string) (string, error) {
	f.calls["CreatePayee"]++
	p := ledger.Payee{ID: f.genID("payee"), Name: name}
	f.payees = append(f.payees, p)
	return p.ID, nil
}

func (f *fakeService) CategoryGroups(ctx context.Context) ([]ledger.CategoryGroup, error) {
	f.calls["CategoryGroups"]++
	return append([]ledger.CategoryGroup(nil), f.groups...), nil
}

func (f *fakeService) CreateCategoryGroup(ctx context.Context, group ledger.CategoryGroup) (string, error) {
	f.calls["CreateCategoryGroup"]++
	group.ID = f.genID("group")
	f.groups = append(f.groups, group)
	return group.ID, nil
}

func (f *fakeService) UpdateCategoryGroup(ctx context.Context, group ledger.CategoryGroup) error {
	f.calls["UpdateCategoryGroup"]++
	for i := range f.groups {
		if f.groups[i].ID == group.ID {
			group.Categories = f.groups[i].Categories
			f.groups[i] = group
			return nil
		}
	}
	return fmt.Errorf("group %s not found", group.ID)
}

func (f *fakeService) CreateCategory(ctx context.Context, category ledger.Category) (string, error) {
	f.calls["CreateCategory"]++
	category.ID = f.genID("cat")
	for i := range f.groups {
		if f.groups[i].ID == category.GroupID {
			f.groups[i].Categories = append(f.groups[i].Categories, category)
			return category.ID, nil
		}
	}
	return "", fmt.Errorf("group %s not found", category.GroupID)
}

func (f *fakeService) UpdateCategory(ctx context.Context, category ledger.Category) error {
	f.calls["UpdateCategory"]++
	for i := range f.groups {
		for j := range f.groups[i].Categories {
			if f.groups[i].Categories[j].ID == category.ID {
				f.groups[i].Categories[j] = category
				return nil
			}
		}
	}
	return fmt.Errorf("category %s not found", category.ID)
}

func (f *fakeService) ImportTransactions(ctx context.Context, accountID string, txns []ledger.Transaction) (ledger.ImportResult, error) {
	f.calls["ImportTransactions"]++
	if f.txns[accountID] == nil {
		f.txns[accountID] = map[string]ledger.Transaction{}
	}

	var result ledger.ImportResult
	for _, tx := range txns {
		existing, ok := f.txns[accountID][tx.ImportedID]
		switch {
		case !ok:
			tx.ID = f.genID("txn")
			f.txns[accountID][tx.ImportedID] = tx
			result.Added = append(result.Added, tx.ID)
		case existing.Amount != tx.Amount || existing.Date != tx.Date || existing.Notes != tx.Notes:
			tx.ID = existing.ID
			f.txns[accountID][tx.ImportedID] = tx
			result.Updated = append(result.Updated, tx.ID)
		}
	}
	return result, nil
}

func (f *fakeService) Rules(ctx context.Context) ([]ledger.Rule, error) {
	f.calls["Rules"]++
	return append([]ledger.Rule(nil), f.rules...), nil
}

func (f *fakeService) CreateRule(ctx context.Context, rule ledger.Rule) (string, error) {
	f.calls["CreateRule"]++
	rule.ID = f.genID("rule")
	f.rules = append(f.rules, rule)
	return rule.ID, nil
}

func (f *fakeService) UpdateRule(ctx context.Context, rule ledger.Rule) error {
	f.calls["UpdateRule"]++
	for i := range f.rules {
		if f.rules[i].ID == rule.ID {
			f.rules[i] = rule
			return nil
		}
	}
	return fmt.Errorf("rule %s not found", rule.ID)
}

func (f *fakeService) Sync(ctx context.Context) error {
	f.calls["Sync"]++
	return nil
}

// transactionCount is the total number of stored transactions.
func (f *fakeService) transactionCount() int {
	n := 0
	for _, byImportID := range f.txns {
		n += len(byImportID)
	}
	return n
}

// newTestRunner builds a Runner over a temp config dir with an empty registry
// and pre-built lookups. The clock is pinned for deterministic dates.
func newTestRunner(t *testing.T, svc ledger.Service) *Runner {
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
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r := NewRunner(cfg, svc, registry.Load(ctx, cfg.RegistryPath), false)
	r.now = func() time.Time { return time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC) }

	lookups, err := BuildLookups(ctx, svc)
	if err != nil {
		t.Fatalf("BuildLookups: %v", err)
	}
	r.lookups = lookups
	return r
}
