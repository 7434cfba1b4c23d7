package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-sync/internal/logger"
)

// DryRun wraps a Service so that reads pass through and mutations are logged
// but never issued. Created entities get placeholder ids so the rest of the
// pipeline can preview its own behavior.
type DryRun struct {
	inner Service
}

// NewDryRun wraps a Service in dry-run mode.
func NewDryRun(inner Service) *DryRun {
	return &DryRun{inner: inner}
}

func (d *DryRun) Accounts(ctx context.Context) ([]Account, error) {
	return d.inner.Accounts(ctx)
}

func (d *DryRun) CreateAccount(ctx context.Context, account Account) (string, error) {
	log := logger.FromContext(ctx)
	log.Info().
		Str("name", account.Name).
		Str("type", account.Type).
		Bool("offbudget", account.OffBudget).
		Msg("[DRY RUN] Would create account")
	return placeholderID(), nil
}

func (d *DryRun) UpdateAccount(ctx context.Context, account Account) error {
	log := logger.FromContext(ctx)
	log.Info().Str("id", account.ID).Msg("[DRY RUN] Would update account")
	return nil
}

func (d *DryRun) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	return d.inner.AccountBalance(ctx, accountID)
}

func (d *DryRun) Payees(ctx context.Context) ([]Payee, error) {
	return d.inner.Payees(ctx)
}

func (d *DryRun) CreatePayee(ctx context.Context, name string) (string, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("name", name).Msg("[DRY RUN] Would create payee")
	return placeholderID(), nil
}

func (d *DryRun) CategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	return d.inner.CategoryGroups(ctx)
}

func (d *DryRun) CreateCategoryGroup(ctx context.Context, group CategoryGroup) (string, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("name", group.Name).Msg("[DRY RUN] Would create category group")
	return placeholderID(), nil
}

func (d *DryRun) UpdateCategoryGroup(ctx context.Context, group CategoryGroup) error {
	log := logger.FromContext(ctx)
	log.Info().Str("name", group.Name).Msg("[DRY RUN] Would update category group")
	return nil
}

func (d *DryRun) CreateCategory(ctx context.Context, category Category) (string, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("name", category.Name).Msg("[DRY RUN] Would create category")
	return placeholderID(), nil
}

func (d *DryRun) UpdateCategory(ctx context.Context, category Category) error {
	log := logger.FromContext(ctx)
	log.Info().Str("name", category.Name).Msg("[DRY RUN] Would update category")
	return nil
}

func (d *DryRun) ImportTransactions(ctx context.Context, accountID string, txns []Transaction) (ImportResult, error) {
	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", accountID).
		Int("transactions", len(txns)).
		Msg("[DRY RUN] Would import transaction batch")
	return ImportResult{}, nil
}

func (d *DryRun) Rules(ctx context.Context) ([]Rule, error) {
	return d.inner.Rules(ctx)
}

func (d *DryRun) CreateRule(ctx context.Context, rule Rule) (string, error) {
	log := logger.FromContext(ctx)
	log.Info().
		Str("stage", rule.Stage).
		Int("conditions", len(rule.Conditions)).
		Int("actions", len(rule.Actions)).
		Msg("[DRY RUN] Would create rule")
	return placeholderID(), nil
}

func (d *DryRun) UpdateRule(ctx context.Context, rule Rule) error {
	log := logger.FromContext(ctx)
	log.Info().Str("id", rule.ID).Msg("[DRY RUN] Would update rule")
	return nil
}

func (d *DryRun) Sync(ctx context.Context) error {
	return nil
}

// placeholderID marks ids that never existed remotely.
func placeholderID() string {
	return "dry-run-" + uuid.NewString()
}
