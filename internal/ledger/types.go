package ledger

// Entity types for the remote personal-ledger service. All identifiers are
// assigned by the service on creation and are authoritative from then on.

// Account is a remote ledger account.
type Account struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	OffBudget bool   `json:"offbudget"`
	Closed    bool   `json:"closed"`
}

// Account types understood by the service.
const (
	AccountTypeChecking   = "checking"
	AccountTypeSavings    = "savings"
	AccountTypeCredit     = "credit"
	AccountTypeInvestment = "investment"
	AccountTypeMortgage   = "mortgage"
	AccountTypeDebt       = "debt"
	AccountTypeOther      = "other"
)

// Payee is a remote payee.
type Payee struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// CategoryGroup is a remote category group with its nested categories.
type CategoryGroup struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	IsIncome   bool       `json:"is_income"`
	Hidden     bool       `json:"hidden"`
	Categories []Category `json:"categories,omitempty"`
}

// Category is a remote category inside a group.
type Category struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
	Hidden  bool   `json:"hidden"`
}

// Transaction is a remote transaction. Amount is in integer minor currency
// units. ImportedID is the stable dedup key: the import endpoint upserts on
// it, so re-importing the same batch never duplicates.
type Transaction struct {
	ID         string `json:"id,omitempty"`
	AccountID  string `json:"account,omitempty"`
	Date       string `json:"date"` // YYYY-MM-DD
	Amount     int64  `json:"amount"`
	PayeeName  string `json:"payee_name,omitempty"`
	Notes      string `json:"notes,omitempty"`
	ImportedID string `json:"imported_id,omitempty"`
	Cleared    bool   `json:"cleared"`
}

// ImportResult reports what a batch import did.
type ImportResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
}

// Rule stages; an empty stage means the default stage.
const (
	RuleStagePre  = "pre"
	RuleStagePost = "post"
)

// Rule is a remote classification rule.
type Rule struct {
	ID           string      `json:"id,omitempty"`
	Stage        string      `json:"stage,omitempty"`
	ConditionsOp string      `json:"conditionsOp"` // "and" | "or"
	Conditions   []Condition `json:"conditions"`
	Actions      []Action    `json:"actions"`
}

// Condition matches a transaction field against a value.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// Action sets a transaction field. Value is human-readable; for foreign-key
// fields ID carries the resolved identifier alongside it.
type Action struct {
	Field string `json:"field"`
	Op    string `json:"op,omitempty"` // defaults to "set"
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
}
