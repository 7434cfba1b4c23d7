package reconcile

import (
	"context"
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// adjustmentPayee is the sentinel payee on synthesized balance adjustments.
const adjustmentPayee = "Manual Balance Adjustment"

// adjustmentNamespace seeds the deterministic adjustment transaction ids.
var adjustmentNamespace = uuid.MustParse("8b2f9c4e-1d37-4a86-9f05-6c1e2d7b3a90")

// ReconcileBalances compares, for every account with a captured snapshot
// balance, the externally reported balance against the remote computed
// balance. Accounts created this run get exactly one adjustment transaction
// closing the gap; pre-existing accounts are only reported, since their
// mismatch may just mean incomplete history. The adjustment's imported id is
// a stable hash of the external key, so re-running is a no-op.
func (r *Runner) ReconcileBalances(ctx context.Context) {
	log := logger.FromContext(ctx)

	keys := make([]string, 0, len(r.expected))
	for k := range r.expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, externalKey := range keys {
		remoteID, ok := r.resolveMapping(externalKey)
		if !ok {
			// Account reconciliation failed earlier; already warned there.
			continue
		}

		var actual int64
		if !r.dryRun || !r.created[externalKey] {
			// A placeholder id from a dry-run create never exists remotely;
			// its balance is zero by construction.
			var err error
			actual, err = r.svc.AccountBalance(ctx, remoteID)
			if err != nil {
				r.warn(ctx, err, "Failed to read remote balance", map[string]string{
					"external_key": externalKey,
					"remote_id":    remoteID,
				})
				continue
			}
		}

		expected := r.expected[externalKey]
		diff := expected - actual
		if diff == 0 {
			continue
		}

		if !r.created[externalKey] {
			r.summary.BalanceMismatches++
			log.Warn().
				Str("external_key", externalKey).
				Str("expected", money.New(expected, r.cfg.Currency).Display()).
				Str("actual", money.New(actual, r.cfg.Currency).Display()).
				Str("diff", money.New(diff, r.cfg.Currency).Display()).
				Msg("Balance mismatch on pre-existing account, not adjusting")
			continue
		}

		date := r.now()
		if earliest, ok := r.earliest[externalKey]; ok {
			date = earliest.AddDate(0, 0, -1)
		}

		adjustment := ledger.Transaction{
			Date:       date.Format("2006-01-02"),
			Amount:     diff,
			PayeeName:  adjustmentPayee,
			Notes:      "Opening balance adjustment",
			ImportedID: AdjustmentID(externalKey),
			Cleared:    true,
		}

		if _, err := r.svc.ImportTransactions(ctx, remoteID, []ledger.Transaction{adjustment}); err != nil {
			r.warn(ctx, err, "Failed to create balance adjustment", map[string]string{
				"external_key": externalKey,
				"remote_id":    remoteID,
			})
			continue
		}

		r.summary.AdjustmentsCreated++
		log.Info().
			Str("external_key", externalKey).
			Str("amount", money.New(diff, r.cfg.Currency).Display()).
			Str("date", adjustment.Date).
			Msg("Created balance adjustment")
	}
}

// AdjustmentID derives the deterministic imported id for an account's balance
// adjustment. Same key in, same id out, across runs.
func AdjustmentID(externalKey string) string {
	return uuid.NewSHA1(adjustmentNamespace, []byte(externalKey+"-balance-adjustment")).String()
}
