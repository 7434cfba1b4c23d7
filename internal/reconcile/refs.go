package reconcile

import (
	"errors"
	"fmt"
)

// RefKind selects which lookup table a reference resolves against.
type RefKind string

const (
	RefPayee    RefKind = "payee"
	RefCategory RefKind = "category"
	RefAccount  RefKind = "account"
)

// Ref is a reference to a remote entity inside a rule condition or action.
// A ref with only a Name is pending resolution; a ref carrying an ID was
// resolved on an earlier run and may have gone stale since.
type Ref struct {
	Name string
	ID   string
}

// Resolution is the outcome of resolving a Ref. Repaired is set when a stale
// stored identifier was replaced by re-resolving the accompanying name, which
// means the owning document must be persisted again.
type Resolution struct {
	ID       string
	Repaired bool
}

// ErrUnresolved is returned when neither the stored identifier nor the name
// resolves against the current remote entity set.
var ErrUnresolved = errors.New("reference does not resolve")

// ResolveRef resolves a tagged reference against the current lookup tables.
// It is a pure function of its inputs: no remote calls, no mutation.
func ResolveRef(ref Ref, kind RefKind, l *Lookups) (Resolution, error) {
	if ref.ID != "" && refIDExists(ref.ID, kind, l) {
		return Resolution{ID: ref.ID}, nil
	}

	id, ok := refIDByName(ref.Name, kind, l)
	if !ok {
		if ref.ID != "" {
			return Resolution{}, fmt.Errorf("%w: stale %s id %q, name %q unknown", ErrUnresolved, kind, ref.ID, ref.Name)
		}
		return Resolution{}, fmt.Errorf("%w: %s %q", ErrUnresolved, kind, ref.Name)
	}

	return Resolution{ID: id, Repaired: ref.ID != "" && ref.ID != id}, nil
}

func refIDExists(id string, kind RefKind, l *Lookups) bool {
	switch kind {
	case RefPayee:
		_, ok := l.payeeNameByID[id]
		return ok
	case RefCategory:
		_, ok := l.categoryByID[id]
		return ok
	case RefAccount:
		_, ok := l.accountByID[id]
		return ok
	}
	return false
}

func refIDByName(name string, kind RefKind, l *Lookups) (string, bool) {
	if name == "" {
		return "", false
	}
	switch kind {
	case RefPayee:
		return l.PayeeIDByName(name)
	case RefCategory:
		return l.CategoryIDByName(name)
	case RefAccount:
		return l.AccountIDByName(name)
	}
	return "", false
}

// refNameByID translates a resolved identifier back to its human-readable
// name, used when pulling remote rules into the local document.
func refNameByID(id string, kind RefKind, l *Lookups) (string, bool) {
	switch kind {
	case RefPayee:
		name, ok := l.payeeNameByID[id]
		return name, ok
	case RefCategory:
		name, ok := l.categoryNameByID[id]
		return name, ok
	case RefAccount:
		name, ok := l.accountNameByID[id]
		return name, ok
	}
	return "", false
}

// refKindForField maps a rule field name to the entity kind it references.
// Non-entity fields (description, notes, amount, date) have no kind.
func refKindForField(field string) (RefKind, bool) {
	switch field {
	case "payee":
		return RefPayee, true
	case "category":
		return RefCategory, true
	case "account":
		return RefAccount, true
	}
	return "", false
}
