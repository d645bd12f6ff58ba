package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/horiens/restock/internal/config"
)

// Client is the thin HTTP implementation of Source against the seller API.
// It carries no retry or backoff logic; transport reliability is the
// upstream client's concern and failures simply surface to the caller.
type Client struct {
	baseURL    string
	clientID   string
	apiKey     string
	httpClient *http.Client
}

// NewClient validates the connection parameters and constructs a client.
func NewClient(cfg config.MarketConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("market: base url required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		clientID: cfg.ClientID,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type productListResponse struct {
	Result struct {
		Items []struct {
			SKU string `json:"sku"`
		} `json:"items"`
	} `json:"result"`
}

type salesResponse struct {
	Result struct {
		Rows []SalesRecord `json:"rows"`
	} `json:"result"`
}

type stockResponse struct {
	Result StockSnapshot `json:"result"`
}

// ListSKUs pulls the seller's product list.
func (c *Client) ListSKUs(ctx context.Context) ([]string, error) {
	var resp productListResponse
	if err := c.post(ctx, "/v1/products/list", map[string]any{}, &resp); err != nil {
		return nil, err
	}
	skus := make([]string, 0, len(resp.Result.Items))
	for _, item := range resp.Result.Items {
		skus = append(skus, item.SKU)
	}
	return skus, nil
}

// FetchSales pulls per-day sales records for a SKU over the date range.
func (c *Client) FetchSales(ctx context.Context, sku string, from, to time.Time) ([]SalesRecord, error) {
	body := map[string]any{
		"sku":       sku,
		"date_from": from.UTC().Format("2006-01-02"),
		"date_to":   to.UTC().Format("2006-01-02"),
	}
	var resp salesResponse
	if err := c.post(ctx, "/v1/analytics/sales", body, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Rows, nil
}

// FetchStock pulls the current stock snapshot for a SKU.
func (c *Client) FetchStock(ctx context.Context, sku string) (StockSnapshot, error) {
	var resp stockResponse
	if err := c.post(ctx, "/v1/stocks", map[string]any{"sku": sku}, &resp); err != nil {
		return StockSnapshot{}, err
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("market: marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("market: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market: call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("market: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("market: decode %s response: %w", path, err)
	}
	return nil
}
