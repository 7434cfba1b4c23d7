// Package export reads the canonical CSV files produced by the per-institution
// exporters: one optional account snapshot plus any number of transaction
// batch files per institution directory.
package export

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one row of an institution's account snapshot file.
// ExternalID is assigned by the exporter and stable across runs.
type Account struct {
	ExternalID string
	Name       string
	Type       string
	Balance    decimal.Decimal
	Currency   string
}

// Transaction is one row of a transaction batch file.
type Transaction struct {
	ExternalID        string
	AccountExternalID string
	AccountName       string
	Date              time.Time
	Description       string
	Amount            decimal.Decimal
	Currency          string
	Payee             string // explicit payee override
	PayeeName         string // normalized payee name from the exporter rules
	Category          string
	IsTransfer        bool
	Notes             string
}

// Batch is the contents of a single transaction batch file.
type Batch struct {
	File         string
	Transactions []Transaction
}

// Institution is everything read from one institution directory.
type Institution struct {
	Name     string
	Accounts []Account // empty when the directory has no snapshot file
	Batches  []Batch
}
