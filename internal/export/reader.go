package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-sync/internal/logger"
)

// snapshotFile is the account snapshot filename; every other CSV in an
// institution directory is treated as a transaction batch.
const snapshotFile = "accounts.csv"

// Column names written by the exporters. Lookup is by header name, so column
// order does not matter and unknown columns are ignored.
const (
	colTransactionID = "Unique Transaction ID"
	colAccountID     = "Unique Account ID"
	colAccountName   = "Account Name"
	colDate          = "Date"
	colDescription   = "Description"
	colPayee         = "Payee"
	colPayeeName     = "Payee Name"
	colAmount        = "Amount"
	colCurrency      = "Currency"
	colCategory      = "Category"
	colIsTransfer    = "Is Transfer"
	colNotes         = "Notes"
	colType          = "Type"
	colBalance       = "Current Balance"
)

// dateFormats are the date layouts the exporters have been observed to emit.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ReadDir enumerates one subdirectory per institution under root and reads
// each institution's snapshot and batch files. When only is non-empty, all
// other institutions are skipped.
func ReadDir(ctx context.Context, root, only string) ([]Institution, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("export.ReadDir: %w", err)
	}

	var institutions []Institution
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if only != "" && !strings.EqualFold(name, only) {
			continue
		}
		inst, err := readInstitution(ctx, filepath.Join(root, name), name)
		if err != nil {
			return nil, err
		}
		institutions = append(institutions, inst)
	}

	sort.Slice(institutions, func(i, j int) bool { return institutions[i].Name < institutions[j].Name })
	return institutions, nil
}

func readInstitution(ctx context.Context, dir, name string) (Institution, error) {
	log := logger.FromContext(ctx)
	inst := Institution{Name: name}

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return inst, fmt.Errorf("export.readInstitution: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		if strings.EqualFold(filepath.Base(file), snapshotFile) {
			accounts, err := readSnapshot(ctx, file)
			if err != nil {
				return inst, err
			}
			inst.Accounts = accounts
			continue
		}

		txns, err := readBatch(ctx, file)
		if err != nil {
			return inst, err
		}
		if len(txns) == 0 {
			log.Debug().Str("file", file).Msg("Batch file has no usable rows")
			continue
		}
		inst.Batches = append(inst.Batches, Batch{File: filepath.Base(file), Transactions: txns})
	}

	log.Info().
		Str("institution", name).
		Int("accounts", len(inst.Accounts)).
		Int("batches", len(inst.Batches)).
		Msg("Read institution export")
	return inst, nil
}

func readSnapshot(ctx context.Context, path string) ([]Account, error) {
	log := logger.FromContext(ctx)

	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	for _, row := range rows {
		externalID := header.get(row, colAccountID)
		if externalID == "" {
			// Cannot be reconciled without a stable key.
			continue
		}

		balance, err := decimal.NewFromString(strings.TrimSpace(header.get(row, colBalance)))
		if err != nil {
			log.Debug().Str("account", externalID).Str("file", path).Msg("Skipping snapshot row with unparseable balance")
			continue
		}

		accounts = append(accounts, Account{
			ExternalID: externalID,
			Name:       header.get(row, colAccountName),
			Type:       header.get(row, colType),
			Balance:    balance,
			Currency:   header.get(row, colCurrency),
		})
	}
	return accounts, nil
}

func readBatch(ctx context.Context, path string) ([]Transaction, error) {
	log := logger.FromContext(ctx)

	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var txns []Transaction
	for _, row := range rows {
		accountID := header.get(row, colAccountID)
		if accountID == "" {
			continue
		}

		transactionID := header.get(row, colTransactionID)
		if transactionID == "" {
			// Without a key the row cannot be deduplicated downstream; all
			// keyless rows would collapse onto one import id.
			log.Debug().Str("file", path).Msg("Skipping row without transaction id")
			continue
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(header.get(row, colAmount)))
		if err != nil {
			log.Debug().Str("file", path).Str("raw", header.get(row, colAmount)).Msg("Skipping row with unparseable amount")
			continue
		}

		date, ok := parseDate(header.get(row, colDate))
		if !ok {
			log.Debug().Str("file", path).Str("raw", header.get(row, colDate)).Msg("Skipping row with unparseable date")
			continue
		}

		txns = append(txns, Transaction{
			ExternalID:        transactionID,
			AccountExternalID: accountID,
			AccountName:       header.get(row, colAccountName),
			Date:              date,
			Description:       header.get(row, colDescription),
			Amount:            amount,
			Currency:          header.get(row, colCurrency),
			Payee:             header.get(row, colPayee),
			PayeeName:         header.get(row, colPayeeName),
			Category:          header.get(row, colCategory),
			IsTransfer:        parseBool(header.get(row, colIsTransfer)),
			Notes:             header.get(row, colNotes),
		})
	}
	return txns, nil
}

// headerIndex maps column names to their position in the file.
type headerIndex map[string]int

func (h headerIndex) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readCSV(path string) ([][]string, headerIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("export.readCSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("export.readCSV: %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, headerIndex{}, nil
	}

	header := headerIndex{}
	for i, col := range records[0] {
		header[strings.TrimSpace(col)] = i
	}
	return records[1:], header, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}
