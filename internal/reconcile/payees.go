package reconcile

import (
	"context"
	"sort"

	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// ResolvePayees creates every payee referenced by rule conditions or actions
// that does not exist remotely yet, so later stages can use payee ids as
// foreign keys. The remote payee list was fetched once when the lookup tables
// were built.
func (r *Runner) ResolvePayees(ctx context.Context, rules *RuleFile) error {
	log := logger.FromContext(ctx)

	referenced := map[string]string{} // normalized -> original spelling
	for _, rule := range rules.Rules {
		for _, c := range rule.Conditions {
			if kind, ok := refKindForField(c.Field); ok && kind == RefPayee {
				referenced[normName(c.Value)] = c.Value
			}
		}
		for _, a := range rule.Actions {
			if kind, ok := refKindForField(a.Field); ok && kind == RefPayee {
				referenced[normName(a.Value)] = a.Value
			}
		}
	}

	names := make([]string, 0, len(referenced))
	for n := range referenced {
		if n == "" {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if _, ok := r.lookups.PayeeIDByName(n); ok {
			continue
		}

		name := referenced[n]
		id, err := r.svc.CreatePayee(ctx, name)
		if err != nil {
			r.warn(ctx, err, "Failed to create payee", map[string]string{"payee": name})
			continue
		}

		r.lookups.AddPayee(ledger.Payee{ID: id, Name: name})
		r.summary.PayeesCreated++
		log.Info().Str("payee", name).Str("remote_id", id).Msg("Created remote payee")
	}

	return nil
}
