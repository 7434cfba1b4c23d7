package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/ledger-sync/internal/ledger"
)

func testLookups(t *testing.T) *Lookups {
	t.Helper()

	svc := newFakeService()
	svc.payees = []ledger.Payee{{ID: "payee-1", Name: "Metro"}}
	svc.groups = []ledger.CategoryGroup{{
		ID:   "group-1",
		Name: "Usual Expenses",
		Categories: []ledger.Category{
			{ID: "cat-1", Name: "Groceries", GroupID: "group-1"},
		},
	}}
	svc.accounts = []ledger.Account{{ID: "acct-1", Name: "RBC Chequing"}}

	l, err := BuildLookups(context.Background(), svc)
	if err != nil {
		t.Fatalf("BuildLookups: %v", err)
	}
	return l
}

func TestResolveRef(t *testing.T) {
	l := testLookups(t)

	tests := []struct {
		name         string
		ref          Ref
		kind         RefKind
		wantID       string
		wantRepaired bool
		wantErr      bool
	}{
		{
			name:   "valid id kept as-is",
			ref:    Ref{Name: "Groceries", ID: "cat-1"},
			kind:   RefCategory,
			wantID: "cat-1",
		},
		{
			name:   "name only resolves",
			ref:    Ref{Name: "Metro"},
			kind:   RefPayee,
			wantID: "payee-1",
		},
		{
			name:   "name resolution is case-insensitive",
			ref:    Ref{Name: "  groceries "},
			kind:   RefCategory,
			wantID: "cat-1",
		},
		{
			name:         "stale id repaired by name",
			ref:          Ref{Name: "Groceries", ID: "cat-deleted"},
			kind:         RefCategory,
			wantID:       "cat-1",
			wantRepaired: true,
		},
		{
			name:    "stale id with unknown name fails",
			ref:     Ref{Name: "No Such", ID: "cat-deleted"},
			kind:    RefCategory,
			wantErr: true,
		},
		{
			name:    "unknown name fails",
			ref:     Ref{Name: "No Such"},
			kind:    RefPayee,
			wantErr: true,
		},
		{
			name:   "account by id",
			ref:    Ref{ID: "acct-1"},
			kind:   RefAccount,
			wantID: "acct-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ResolveRef(tt.ref, tt.kind, l)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolved) {
					t.Fatalf("ResolveRef() error = %v, want ErrUnresolved", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRef() error = %v", err)
			}
			if res.ID != tt.wantID {
				t.Errorf("ResolveRef() id = %q, want %q", res.ID, tt.wantID)
			}
			if res.Repaired != tt.wantRepaired {
				t.Errorf("ResolveRef() repaired = %v, want %v", res.Repaired, tt.wantRepaired)
			}
		})
	}
}

func TestRefKindForField(t *testing.T) {
	if kind, ok := refKindForField("payee"); !ok || kind != RefPayee {
		t.Errorf("refKindForField(payee) = %v, %v", kind, ok)
	}
	if _, ok := refKindForField("description"); ok {
		t.Error("refKindForField(description) must have no kind")
	}
}
