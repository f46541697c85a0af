// Package broker provides account value accessors: an HTTP client for
// the broker gateway and a historical provider for simulation runs.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
)

// GatewayClient fetches live total account values from the broker
// gateway. The gateway normalizes per-broker auth and response shapes;
// this client only speaks the gateway's JSON surface.
type GatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGatewayClient creates a new broker gateway client
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type accountValueResponse struct {
	AccountID  string `json:"accountId"`
	TotalValue string `json:"totalValue"`
	AsOf       string `json:"asOf"`
}

// TotalAccountValue returns the account's live total value. A gateway
// that does not know the balance yet (404 or empty value) yields nil
// with no error, which callers treat as "skip this cycle".
func (c *GatewayClient) TotalAccountValue(ctx context.Context, account *models.Account) (*decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/value", c.baseURL, account.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build balance request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("balance request failed for account %s: %w", account.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("balance request for account %s returned %d: %s", account.ID, resp.StatusCode, string(body))
	}

	var payload accountValueResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode balance response for account %s: %w", account.ID, err)
	}
	if payload.TotalValue == "" {
		return nil, nil
	}

	value, err := decimal.NewFromString(payload.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q for account %s: %w", payload.TotalValue, account.ID, err)
	}

	return &value, nil
}
