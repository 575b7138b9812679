package assetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/r3e-network/lottery-core/internal/errors"
)

const defaultTimeout = 2 * time.Second

// HTTPClient is the production Client, calling the asset service over a
// plain JSON/HTTP contract mirroring the gasbank client's request shape.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config controls the HTTP client's target and auth.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New constructs an HTTPClient.
func New(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("assetclient: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type debitRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	IdemKey   string `json:"idempotency_key"`
}

type debitResponse struct {
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Error         string `json:"error,omitempty"`
}

// Debit implements Client.
func (c *HTTPClient) Debit(ctx context.Context, accountID string, amount int64, idemKey string) (DebitResult, error) {
	var resp debitResponse
	if err := c.post(ctx, "/v1/debit", debitRequest{AccountID: accountID, Amount: amount, IdemKey: idemKey}, &resp); err != nil {
		return DebitResult{}, errors.AssetDebitFailed(err)
	}
	return DebitResult{BalanceBefore: resp.BalanceBefore, BalanceAfter: resp.BalanceAfter}, nil
}

type issueRequest struct {
	AccountID string `json:"account_id"`
	ItemRef   string `json:"item_ref"`
	IdemKey   string `json:"idempotency_key"`
}

type issueResponse struct {
	ReceiptID string    `json:"receipt_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Error     string    `json:"error,omitempty"`
}

// Issue implements Client.
func (c *HTTPClient) Issue(ctx context.Context, accountID, itemRef, idemKey string) (IssueReceipt, error) {
	var resp issueResponse
	if err := c.post(ctx, "/v1/issue", issueRequest{AccountID: accountID, ItemRef: itemRef, IdemKey: idemKey}, &resp); err != nil {
		return IssueReceipt{}, err
	}
	return IssueReceipt{ReceiptID: resp.ReceiptID, IssuedAt: resp.IssuedAt}, nil
}

type freezeRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	IdemKey   string `json:"idempotency_key"`
}

// Freeze implements Client.
func (c *HTTPClient) Freeze(ctx context.Context, accountID string, amount int64, idemKey string) error {
	return c.post(ctx, "/v1/freeze", freezeRequest{AccountID: accountID, Amount: amount, IdemKey: idemKey}, nil)
}

// Unfreeze implements Client.
func (c *HTTPClient) Unfreeze(ctx context.Context, accountID string, amount int64, idemKey string) error {
	return c.post(ctx, "/v1/unfreeze", freezeRequest{AccountID: accountID, Amount: amount, IdemKey: idemKey}, nil)
}

// SettleFromFrozen implements Client.
func (c *HTTPClient) SettleFromFrozen(ctx context.Context, accountID string, amount int64, idemKey string) (DebitResult, error) {
	var resp debitResponse
	if err := c.post(ctx, "/v1/settle_from_frozen", freezeRequest{AccountID: accountID, Amount: amount, IdemKey: idemKey}, &resp); err != nil {
		return DebitResult{}, err
	}
	return DebitResult{BalanceBefore: resp.BalanceBefore, BalanceAfter: resp.BalanceAfter}, nil
}

type balanceResponse struct {
	Available int64 `json:"available"`
}

// Balance returns the account's current available balance.
func (c *HTTPClient) Balance(ctx context.Context, accountID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/accounts/"+accountID, nil)
	if err != nil {
		return 0, fmt.Errorf("assetclient: build balance request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.TransientStoreError("assetclient_balance", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("assetclient: read balance response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("assetclient: balance lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out balanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("assetclient: unmarshal balance response: %w", err)
	}
	return out.Available, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("assetclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("assetclient: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.TransientStoreError("assetclient_"+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("assetclient: read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("assetclient: %s failed (HTTP %d): %s", path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("assetclient: %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("assetclient: unmarshal response from %s: %w", path, err)
	}
	return nil
}
