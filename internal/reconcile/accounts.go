package reconcile

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-sync/internal/export"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// onBudgetMarkers classify an account as on-budget when its exporter type
// string contains one of them. Everything else (investments, mortgages,
// loans, lines of credit) stays off-budget so its balance does not distort
// spendable totals.
var onBudgetMarkers = []string{"credit card", "checking", "chequing", "cash"}

// accountTypeMap translates exporter account types to the remote type enum.
var accountTypeMap = map[string]string{
	"chequing":       ledger.AccountTypeChecking,
	"checking":       ledger.AccountTypeChecking,
	"savings":        ledger.AccountTypeSavings,
	"credit card":    ledger.AccountTypeCredit,
	"line of credit": ledger.AccountTypeDebt,
	"mortgage":       ledger.AccountTypeMortgage,
	"investment":     ledger.AccountTypeInvestment,
	"loan":           ledger.AccountTypeDebt,
}

// ReconcileAccounts guarantees a 1:1 mapping from each snapshot account to a
// remote account, creating missing ones. The snapshot balance is captured for
// the balance reconciliation stage. A failure on one account skips that
// account only.
func (r *Runner) ReconcileAccounts(ctx context.Context, inst export.Institution) {
	log := logger.FromContext(ctx)

	for _, acc := range inst.Accounts {
		remoteID, err := r.resolveAccount(ctx, acc.ExternalID, acc.Name, acc.Type, false)
		if err != nil {
			r.warn(ctx, err, "Failed to reconcile account", map[string]string{
				"institution":  inst.Name,
				"external_key": acc.ExternalID,
			})
			continue
		}

		r.expected[acc.ExternalID] = minorUnits(acc.Balance)

		log.Debug().
			Str("external_key", acc.ExternalID).
			Str("remote_id", remoteID).
			Msg("Account reconciled")
	}
}

// resolveAccount resolves an external account key to a remote account id:
// registry first, then exact-name match against both the display name and the
// raw key, then creation. Every successful resolution is recorded in the
// registry before anything depends on it. offBudgetFallback forces the
// off-budget classification for accounts discovered only through transaction
// batches, where no type information exists.
func (r *Runner) resolveAccount(ctx context.Context, externalKey, displayName, accountType string, offBudgetFallback bool) (string, error) {
	log := logger.FromContext(ctx)

	if id, ok := r.resolveMapping(externalKey); ok {
		r.repairAccountName(ctx, id, externalKey, displayName)
		return id, nil
	}

	// Older runs used the display name as the remote account name; the raw
	// key match tolerates exports that predate display names.
	for _, candidate := range []string{displayName, externalKey} {
		if id, ok := r.lookups.AccountIDByName(candidate); ok {
			if err := r.recordMapping(ctx, externalKey, id); err != nil {
				return "", err
			}
			r.repairAccountName(ctx, id, externalKey, displayName)
			log.Info().
				Str("external_key", externalKey).
				Str("remote_id", id).
				Str("matched_name", candidate).
				Msg("Matched existing remote account by name")
			return id, nil
		}
	}

	name := displayName
	if name == "" {
		name = externalKey
	}

	account := ledger.Account{
		Name:      name,
		Type:      remoteAccountType(accountType),
		OffBudget: offBudgetFallback || !isOnBudget(accountType),
	}

	id, err := r.svc.CreateAccount(ctx, account)
	if err != nil {
		return "", err
	}
	account.ID = id

	if err := r.recordMapping(ctx, externalKey, id); err != nil {
		return "", err
	}
	r.lookups.AddAccount(account)
	r.created[externalKey] = true
	r.summary.AccountsCreated++

	log.Info().
		Str("external_key", externalKey).
		Str("remote_id", id).
		Str("type", account.Type).
		Bool("offbudget", account.OffBudget).
		Msg("Created remote account")
	return id, nil
}

// repairAccountName upgrades a remote account still named after its raw
// external key to the exporter's display name. Accounts renamed by hand in
// the ledger are left alone: only the exact raw-key name is touched.
func (r *Runner) repairAccountName(ctx context.Context, remoteID, externalKey, displayName string) {
	log := logger.FromContext(ctx)

	if displayName == "" || displayName == externalKey {
		return
	}
	account, ok := r.lookups.AccountByID(remoteID)
	if !ok || account.Name != externalKey {
		return
	}

	account.Name = displayName
	if err := r.svc.UpdateAccount(ctx, account); err != nil {
		r.warn(ctx, err, "Failed to rename account", map[string]string{
			"external_key": externalKey,
			"remote_id":    remoteID,
		})
		return
	}
	r.lookups.AddAccount(account)
	log.Info().
		Str("external_key", externalKey).
		Str("remote_id", remoteID).
		Str("name", displayName).
		Msg("Renamed account from raw key to display name")
}

// isOnBudget applies the budget classification heuristic to the exporter's
// account type string.
func isOnBudget(accountType string) bool {
	t := strings.ToLower(accountType)
	for _, marker := range onBudgetMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

func remoteAccountType(accountType string) string {
	if t, ok := accountTypeMap[normName(accountType)]; ok {
		return t
	}
	return ledger.AccountTypeOther
}

// minorUnits converts a decimal currency amount to integer minor units by
// rounding amount*100.
func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
