package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the concrete implementation of Service over the ledger service's
// HTTP API. Every response carries a {"data": ...} envelope; errors carry
// {"error": {"reason": ...}}.
type Client struct {
	baseURL  string
	budgetID string
	apiKey   string
	http     *http.Client
}

// NewClient creates a Client for the given service URL, API key and budget.
func NewClient(baseURL, apiKey, budgetID string) *Client {
	return &Client{
		baseURL:  baseURL,
		budgetID: budgetID,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Ping verifies connectivity and credentials before any mutation is issued.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "info", nil, nil); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

// Accounts lists all accounts, including closed ones.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var out []Account
	if err := c.do(ctx, http.MethodGet, c.budgetPath("accounts"), nil, &out); err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	return out, nil
}

// CreateAccount creates an account and returns its assigned id.
func (c *Client) CreateAccount(ctx context.Context, account Account) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.budgetPath("accounts"), account, &out); err != nil {
		return "", fmt.Errorf("CreateAccount: %w", err)
	}
	return out.ID, nil
}

// UpdateAccount updates an existing account by id.
func (c *Client) UpdateAccount(ctx context.Context, account Account) error {
	path := c.budgetPath("accounts/" + url.PathEscape(account.ID))
	if err := c.do(ctx, http.MethodPatch, path, account, nil); err != nil {
		return fmt.Errorf("UpdateAccount: %w", err)
	}
	return nil
}

// AccountBalance returns the computed balance of an account in minor units.
func (c *Client) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	path := c.budgetPath("accounts/" + url.PathEscape(accountID) + "/balance")
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, fmt.Errorf("AccountBalance: %w", err)
	}
	return out.Balance, nil
}

// Payees lists all payees.
func (c *Client) Payees(ctx context.Context) ([]Payee, error) {
	var out []Payee
	if err := c.do(ctx, http.MethodGet, c.budgetPath("payees"), nil, &out); err != nil {
		return nil, fmt.Errorf("Payees: %w", err)
	}
	return out, nil
}

// CreatePayee creates a payee and returns its assigned id.
func (c *Client) CreatePayee(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.budgetPath("payees"), Payee{Name: name}, &out); err != nil {
		return "", fmt.Errorf("CreatePayee: %w", err)
	}
	return out.ID, nil
}

// CategoryGroups lists all category groups with nested categories.
func (c *Client) CategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	var out []CategoryGroup
	if err := c.do(ctx, http.MethodGet, c.budgetPath("category-groups"), nil, &out); err != nil {
		return nil, fmt.Errorf("CategoryGroups: %w", err)
	}
	return out, nil
}

// CreateCategoryGroup creates a group and returns its assigned id.
func (c *Client) CreateCategoryGroup(ctx context.Context, group CategoryGroup) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.budgetPath("category-groups"), group, &out); err != nil {
		return "", fmt.Errorf("CreateCategoryGroup: %w", err)
	}
	return out.ID, nil
}

// UpdateCategoryGroup updates an existing group by id.
func (c *Client) UpdateCategoryGroup(ctx context.Context, group CategoryGroup) error {
	path := c.budgetPath("category-groups/" + url.PathEscape(group.ID))
	if err := c.do(ctx, http.MethodPatch, path, group, nil); err != nil {
		return fmt.Errorf("UpdateCategoryGroup: %w", err)
	}
	return nil
}

// CreateCategory creates a category inside its group and returns its id.
func (c *Client) CreateCategory(ctx context.Context, category Category) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.budgetPath("categories"), category, &out); err != nil {
		return "", fmt.Errorf("CreateCategory: %w", err)
	}
	return out.ID, nil
}

// UpdateCategory updates an existing category by id.
func (c *Client) UpdateCategory(ctx context.Context, category Category) error {
	path := c.budgetPath("categories/" + url.PathEscape(category.ID))
	if err := c.do(ctx, http.MethodPatch, path, category, nil); err != nil {
		return fmt.Errorf("UpdateCategory: %w", err)
	}
	return nil
}

// ImportTransactions upserts a batch into an account, deduplicating on each
// transaction's ImportedID.
func (c *Client) ImportTransactions(ctx context.Context, accountID string, txns []Transaction) (ImportResult, error) {
	body := struct {
		Transactions []Transaction `json:"transactions"`
	}{Transactions: txns}

	var out ImportResult
	path := c.budgetPath("accounts/" + url.PathEscape(accountID) + "/transactions/import")
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return ImportResult{}, fmt.Errorf("ImportTransactions: %w", err)
	}
	return out, nil
}

// Rules lists all rules.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	var out []Rule
	if err := c.do(ctx, http.MethodGet, c.budgetPath("rules"), nil, &out); err != nil {
		return nil, fmt.Errorf("Rules: %w", err)
	}
	return out, nil
}

// CreateRule creates a rule and returns its assigned id.
func (c *Client) CreateRule(ctx context.Context, rule Rule) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.budgetPath("rules"), rule, &out); err != nil {
		return "", fmt.Errorf("CreateRule: %w", err)
	}
	return out.ID, nil
}

// UpdateRule updates an existing rule by id.
func (c *Client) UpdateRule(ctx context.Context, rule Rule) error {
	path := c.budgetPath("rules/" + url.PathEscape(rule.ID))
	if err := c.do(ctx, http.MethodPatch, path, rule, nil); err != nil {
		return fmt.Errorf("UpdateRule: %w", err)
	}
	return nil
}

// Sync commits pending mutations on the service side.
func (c *Client) Sync(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, c.budgetPath("sync"), nil, nil); err != nil {
		return fmt.Errorf("Sync: %w", err)
	}
	return nil
}

func (c *Client) budgetPath(suffix string) string {
	return "budgets/" + url.PathEscape(c.budgetID) + "/" + suffix
}

type errorEnvelope struct {
	Error struct {
		Reason string `json:"reason"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// do issues one request and decodes the {"data": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v1/"+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Reason != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error.Reason, envelope.Error.Detail)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%s %s: decoding envelope: %w", method, path, err)
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return fmt.Errorf("%s %s: decoding data: %w", method, path, err)
	}
	return nil
}
