package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/export"
)

func record(id, account string, date string, amount string) export.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return export.Transaction{
		ExternalID:        id,
		AccountExternalID: account,
		Date:              d,
		Amount:            decimal.RequireFromString(amount),
	}
}

func TestToRemoteTransaction_AmountConversion(t *testing.T) {
	r := newTestRunner(t, newFakeService())

	tx := r.toRemoteTransaction(record("tx-1", "a", "2025-07-01", "12.34"), false)
	assert.Equal(t, int64(1234), tx.Amount)

	tx = r.toRemoteTransaction(record("tx-2", "a", "2025-07-01", "-0.01"), false)
	assert.Equal(t, int64(-1), tx.Amount)
}

func TestToRemoteTransaction_SignInversion(t *testing.T) {
	r := newTestRunner(t, newFakeService())

	tx := r.toRemoteTransaction(record("tx-1", "a", "2025-07-01", "45.67"), true)
	assert.Equal(t, int64(-4567), tx.Amount)
}

func TestToRemoteTransaction_PayeePriority(t *testing.T) {
	r := newTestRunner(t, newFakeService())

	rec := record("tx-1", "a", "2025-07-01", "-1.00")
	rec.Description = "POS 1234 GROCERY"
	rec.PayeeName = "Groceries Inc"
	rec.Payee = "Override Payee"

	assert.Equal(t, "Override Payee", r.toRemoteTransaction(rec, false).PayeeName)

	rec.Payee = ""
	assert.Equal(t, "Groceries Inc", r.toRemoteTransaction(rec, false).PayeeName)

	rec.PayeeName = ""
	assert.Equal(t, "POS 1234 GROCERY", r.toRemoteTransaction(rec, false).PayeeName)
}

func TestToRemoteTransaction_TransferNotes(t *testing.T) {
	r := newTestRunner(t, newFakeService())

	rec := record("tx-1", "a", "2025-07-01", "-250.00")
	rec.Description = "TFR TO VISA"
	rec.IsTransfer = true

	tx := r.toRemoteTransaction(rec, false)
	assert.Equal(t, "TFR TO VISA (Transfer)", tx.Notes)

	rec.Description = ""
	tx = r.toRemoteTransaction(rec, false)
	assert.Equal(t, "(Transfer)", tx.Notes)
}

func TestToRemoteTransaction_ImportedIDAndDate(t *testing.T) {
	r := newTestRunner(t, newFakeService())

	tx := r.toRemoteTransaction(record("tx-77", "a", "2025-07-04", "-1.00"), false)
	assert.Equal(t, "tx-77", tx.ImportedID)
	assert.Equal(t, "2025-07-04", tx.Date)
}

func TestGroupByAccount_PreservesFileOrder(t *testing.T) {
	records := []export.Transaction{
		record("t1", "acc-b", "2025-07-01", "-1"),
		record("t2", "acc-a", "2025-07-02", "-2"),
		record("t3", "acc-b", "2025-07-03", "-3"),
	}

	groups, order := groupByAccount(records)
	assert.Equal(t, []string{"acc-b", "acc-a"}, order)
	assert.Equal(t, []string{"t1", "t3"}, []string{groups["acc-b"][0].ExternalID, groups["acc-b"][1].ExternalID})
}

func TestImportBatches_TracksEarliestAndImports(t *testing.T) {
	ctx := context.Background()
	svc := newFakeService()
	r := newTestRunner(t, svc)

	inst := export.Institution{
		Name: "rbc",
		Batches: []export.Batch{{
			File: "2025-07.csv",
			Transactions: []export.Transaction{
				record("t1", "rbc-chq-001", "2025-07-10", "-5.00"),
				record("t2", "rbc-chq-001", "2025-07-02", "-6.00"),
				record("t3", "rbc-chq-001", "2025-07-20", "-7.00"),
			},
		}},
	}

	r.ImportBatches(ctx, inst)

	// Account never appeared in a snapshot: created on the fly, off-budget.
	assert.Equal(t, 1, svc.calls["CreateAccount"])
	assert.True(t, svc.accounts[0].OffBudget)

	assert.Equal(t, 3, svc.transactionCount())
	assert.Equal(t, "2025-07-02", r.earliest["rbc-chq-001"].Format("2006-01-02"))
}

func TestImportBatches_ReimportCreatesNoDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newFakeService()
	r := newTestRunner(t, svc)

	inst := export.Institution{
		Name: "rbc",
		Batches: []export.Batch{{
			File: "2025-07.csv",
			Transactions: []export.Transaction{
				record("t1", "rbc-chq-001", "2025-07-10", "-5.00"),
			},
		}},
	}

	r.ImportBatches(ctx, inst)
	r.ImportBatches(ctx, inst)

	assert.Equal(t, 1, svc.transactionCount())
	assert.Equal(t, 1, r.summary.TransactionsAdded)
}

func TestImportBatches_InstitutionSignPolicy(t *testing.T) {
	ctx := context.Background()
	svc := newFakeService()
	r := newTestRunner(t, svc)
	r.cfg.Institutions["amex"] = config.InstitutionConfig{InvertSign: true}

	inst := export.Institution{
		Name: "amex",
		Batches: []export.Batch{{
			File: "2025-07.csv",
			Transactions: []export.Transaction{
				record("t1", "amex-001", "2025-07-10", "42.00"),
			},
		}},
	}
	r.ImportBatches(ctx, inst)

	for _, byImport := range svc.txns {
		for _, tx := range byImport {
			assert.Equal(t, int64(-4200), tx.Amount)
		}
	}
}
