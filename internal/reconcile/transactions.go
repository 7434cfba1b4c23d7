package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-sync/internal/export"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// ImportBatches upserts an institution's transaction batches into their
// resolved remote accounts. The external transaction key is the dedup key:
// the remote import endpoint upserts on it, so re-running a batch never
// duplicates. A failure on one account group skips that group, not the run.
func (r *Runner) ImportBatches(ctx context.Context, inst export.Institution) {
	log := logger.FromContext(ctx)
	policy := r.cfg.Institution(inst.Name)

	for _, batch := range inst.Batches {
		groups, order := groupByAccount(batch.Transactions)

		for _, externalKey := range order {
			records := groups[externalKey]

			// Accounts seen only in batches never had a snapshot row, so no
			// type information exists; they are created off-budget.
			remoteID, err := r.resolveAccount(ctx, externalKey, records[0].AccountName, "", true)
			if err != nil {
				r.warn(ctx, err, "Failed to resolve account for batch, skipping its records", map[string]string{
					"institution":  inst.Name,
					"external_key": externalKey,
					"file":         batch.File,
				})
				continue
			}

			txns := make([]ledger.Transaction, 0, len(records))
			for _, rec := range records {
				txns = append(txns, r.toRemoteTransaction(rec, policy.InvertSign))
				r.trackEarliest(externalKey, rec)
			}

			result, err := r.svc.ImportTransactions(ctx, remoteID, txns)
			if err != nil {
				r.warn(ctx, err, "Failed to import transaction batch", map[string]string{
					"institution":  inst.Name,
					"external_key": externalKey,
					"file":         batch.File,
				})
				continue
			}

			r.summary.TransactionsAdded += len(result.Added)
			r.summary.TransactionsUpdated += len(result.Updated)
			log.Info().
				Str("institution", inst.Name).
				Str("file", batch.File).
				Str("external_key", externalKey).
				Int("sent", len(txns)).
				Int("added", len(result.Added)).
				Int("updated", len(result.Updated)).
				Msg("Imported transaction batch")
		}
	}
}

// toRemoteTransaction maps one exporter record to a remote transaction:
// amount rounded to minor units (after the optional per-institution sign
// inversion), date normalized to a calendar date, payee chosen by priority
// override → normalized name → description, notes carrying a transfer marker.
func (r *Runner) toRemoteTransaction(rec export.Transaction, invertSign bool) ledger.Transaction {
	amount := signTransform(rec.Amount, invertSign)

	payee := rec.Payee
	if payee == "" {
		payee = rec.PayeeName
	}
	if payee == "" {
		payee = rec.Description
	}

	notes := rec.Notes
	if notes == "" {
		notes = rec.Description
	}
	if rec.IsTransfer {
		if notes == "" {
			notes = "(Transfer)"
		} else {
			notes += " (Transfer)"
		}
	}

	return ledger.Transaction{
		Date:       rec.Date.Format("2006-01-02"),
		Amount:     minorUnits(amount),
		PayeeName:  payee,
		Notes:      notes,
		ImportedID: rec.ExternalID,
		Cleared:    true,
	}
}

// trackEarliest records the minimum transaction date seen per account, used
// to date a balance adjustment before the account's history.
func (r *Runner) trackEarliest(externalKey string, rec export.Transaction) {
	if current, ok := r.earliest[externalKey]; !ok || rec.Date.Before(current) {
		r.earliest[externalKey] = rec.Date
	}
}

// groupByAccount partitions records by owning account key, preserving file
// order both across groups and within each group.
func groupByAccount(records []export.Transaction) (map[string][]export.Transaction, []string) {
	groups := map[string][]export.Transaction{}
	var order []string
	for _, rec := range records {
		if _, seen := groups[rec.AccountExternalID]; !seen {
			order = append(order, rec.AccountExternalID)
		}
		groups[rec.AccountExternalID] = append(groups[rec.AccountExternalID], rec)
	}
	return groups, order
}

// signTransform applies the per-institution sign policy before minor-unit
// conversion. Liability exports that report purchases as positive set invert.
func signTransform(amount decimal.Decimal, invert bool) decimal.Decimal {
	if invert {
		return amount.Neg()
	}
	return amount
}
