package ledger

import "context"

// Service defines the remote ledger operations the reconciliation engine
// consumes. This interface enables mocking and testing of remote operations.
type Service interface {
	// Accounts lists all accounts, including closed ones.
	Accounts(ctx context.Context) ([]Account, error)

	// CreateAccount creates an account and returns its assigned id.
	CreateAccount(ctx context.Context, account Account) (string, error)

	// UpdateAccount updates an existing account by id.
	UpdateAccount(ctx context.Context, account Account) error

	// AccountBalance returns the computed balance of an account in minor units.
	AccountBalance(ctx context.Context, accountID string) (int64, error)

	// Payees lists all payees.
	Payees(ctx context.Context) ([]Payee, error)

	// CreatePayee creates a payee and returns its assigned id.
	CreatePayee(ctx context.Context, name string) (string, error)

	// CategoryGroups lists all category groups with nested categories.
	CategoryGroups(ctx context.Context) ([]CategoryGroup, error)

	// CreateCategoryGroup creates a group and returns its assigned id.
	CreateCategoryGroup(ctx context.Context, group CategoryGroup) (string, error)

	// UpdateCategoryGroup updates an existing group by id.
	UpdateCategoryGroup(ctx context.Context, group CategoryGroup) error

	// CreateCategory creates a category inside its group and returns its id.
	CreateCategory(ctx context.Context, category Category) (string, error)

	// UpdateCategory updates an existing category by id.
	UpdateCategory(ctx context.Context, category Category) error

	// ImportTransactions upserts a batch into an account, deduplicating on
	// each transaction's ImportedID.
	ImportTransactions(ctx context.Context, accountID string, txns []Transaction) (ImportResult, error)

	// Rules lists all rules.
	Rules(ctx context.Context) ([]Rule, error)

	// CreateRule creates a rule and returns its assigned id.
	CreateRule(ctx context.Context, rule Rule) (string, error)

	// UpdateRule updates an existing rule by id.
	UpdateRule(ctx context.Context, rule Rule) error

	// Sync commits pending mutations on the service side. Invoked after each
	// pipeline stage so an interrupted run leaves consistent remote state.
	Sync(ctx context.Context) error
}
