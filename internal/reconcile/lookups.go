// Package reconcile implements the reconciliation engine: it maps
// exporter-assigned records onto remote ledger entities, upserts accounts and
// transactions idempotently, aligns opening balances for accounts it created,
// and keeps the category taxonomy and rule definitions synchronized in both
// directions.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/ledger"
)

// Lookups holds the per-run indexed views of the remote entity sets. They are
// built once from the remote lists and mutated only through the Add* write
// paths, so every stage sees entities created by earlier stages without
// re-fetching.
type Lookups struct {
	accountByID     map[string]ledger.Account
	accountIDByName map[string]string
	accountNameByID map[string]string

	payeeIDByName map[string]string
	payeeNameByID map[string]string

	groupByID     map[string]ledger.CategoryGroup
	groupIDByName map[string]string

	categoryByID       map[string]ledger.Category
	categoryIDByName   map[string]string
	categoryNameByID   map[string]string
	categoryIDByScoped map[string]string // "group:category", both normalized
}

// BuildLookups fetches the remote account, payee and category sets and
// indexes them. A failure here is fatal: nothing has been mutated yet and the
// engine cannot resolve anything without these tables.
func BuildLookups(ctx context.Context, svc ledger.Service) (*Lookups, error) {
	l := &Lookups{
		accountByID:        map[string]ledger.Account{},
		accountIDByName:    map[string]string{},
		accountNameByID:    map[string]string{},
		payeeIDByName:      map[string]string{},
		payeeNameByID:      map[string]string{},
		groupByID:          map[string]ledger.CategoryGroup{},
		groupIDByName:      map[string]string{},
		categoryByID:       map[string]ledger.Category{},
		categoryIDByName:   map[string]string{},
		categoryNameByID:   map[string]string{},
		categoryIDByScoped: map[string]string{},
	}

	accounts, err := svc.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("BuildLookups: %w", err)
	}
	for _, a := range accounts {
		l.AddAccount(a)
	}

	payees, err := svc.Payees(ctx)
	if err != nil {
		return nil, fmt.Errorf("BuildLookups: %w", err)
	}
	for _, p := range payees {
		l.AddPayee(p)
	}

	groups, err := svc.CategoryGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("BuildLookups: %w", err)
	}
	for _, g := range groups {
		l.AddGroup(g)
		for _, c := range g.Categories {
			c.GroupID = g.ID
			l.AddCategory(g.Name, c)
		}
	}

	return l, nil
}

// AddAccount indexes an account by id and by normalized name.
func (l *Lookups) AddAccount(a ledger.Account) {
	l.accountByID[a.ID] = a
	l.accountIDByName[normName(a.Name)] = a.ID
	l.accountNameByID[a.ID] = a.Name
}

// AddPayee indexes a payee in both directions.
func (l *Lookups) AddPayee(p ledger.Payee) {
	l.payeeIDByName[normName(p.Name)] = p.ID
	l.payeeNameByID[p.ID] = p.Name
}

// AddGroup indexes a category group; its categories are indexed separately.
func (l *Lookups) AddGroup(g ledger.CategoryGroup) {
	l.groupByID[g.ID] = g
	l.groupIDByName[normName(g.Name)] = g.ID
}

// AddCategory indexes a category by id, bare name and group-scoped name.
// For bare-name collisions across groups the first registration wins.
func (l *Lookups) AddCategory(groupName string, c ledger.Category) {
	l.categoryByID[c.ID] = c
	l.categoryNameByID[c.ID] = c.Name
	if _, taken := l.categoryIDByName[normName(c.Name)]; !taken {
		l.categoryIDByName[normName(c.Name)] = c.ID
	}
	l.categoryIDByScoped[normName(groupName)+":"+normName(c.Name)] = c.ID
}

// AccountByID returns an indexed account.
func (l *Lookups) AccountByID(id string) (ledger.Account, bool) {
	a, ok := l.accountByID[id]
	return a, ok
}

// AccountIDByName resolves an account by normalized display name.
func (l *Lookups) AccountIDByName(name string) (string, bool) {
	id, ok := l.accountIDByName[normName(name)]
	return id, ok
}

// PayeeIDByName resolves a payee by normalized name.
func (l *Lookups) PayeeIDByName(name string) (string, bool) {
	id, ok := l.payeeIDByName[normName(name)]
	return id, ok
}

// GroupIDByName resolves a category group by normalized name.
func (l *Lookups) GroupIDByName(name string) (string, bool) {
	id, ok := l.groupIDByName[normName(name)]
	return id, ok
}

// CategoryIDByName resolves a category by bare normalized name.
func (l *Lookups) CategoryIDByName(name string) (string, bool) {
	id, ok := l.categoryIDByName[normName(name)]
	return id, ok
}

// CategoryIDByScopedName resolves a category within a specific group.
func (l *Lookups) CategoryIDByScopedName(group, name string) (string, bool) {
	id, ok := l.categoryIDByScoped[normName(group)+":"+normName(name)]
	return id, ok
}

// normName is the single normalization used for all cross-system name
// matching: institutions rename entities with stray whitespace and case drift.
func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
