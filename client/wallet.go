// Package client is the Go client for the goldium HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one ledger record as served by the API.
type Transaction struct {
	ID               string          `json:"id,omitempty"`
	Type             string          `json:"type"`
	Signature        string          `json:"signature"`
	Timestamp        time.Time       `json:"timestamp,omitempty"`
	FromToken        string          `json:"fromToken,omitempty"`
	ToToken          string          `json:"toToken,omitempty"`
	FromAmount       decimal.Decimal `json:"fromAmount"`
	ToAmount         decimal.Decimal `json:"toAmount"`
	RecipientAddress string          `json:"recipientAddress,omitempty"`
	Status           string          `json:"status,omitempty"`
	EffectApplied    bool            `json:"effectApplied,omitempty"`
}

// Staking is the stored staking position of a wallet.
type Staking struct {
	StakedAmount decimal.Decimal `json:"stakedAmount"`
	StakedAt     *time.Time      `json:"stakedAt,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// Ledger is a wallet's transaction history and derived balances.
type Ledger struct {
	Address           string          `json:"address"`
	Transactions      []Transaction   `json:"transactions"`
	GoldBalance       decimal.Decimal `json:"goldBalance"`
	StakedGoldBalance decimal.Decimal `json:"stakedGoldBalance"`
	Staking           *Staking        `json:"staking,omitempty"`
}

// Tracking describes the confirmation watch for a signature.
type Tracking struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// ReceiveRequest is a Solana Pay payment request for a wallet.
type ReceiveRequest struct {
	Address    string           `json:"address"`
	Token      string           `json:"token"`
	Mint       string           `json:"mint,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Memo       string           `json:"memo,omitempty"`
	PaymentURL string           `json:"payment_url"`
	QRCodeData string           `json:"qr_code_data"`
}

// ReceiveOptions narrows a payment request. Zero values are omitted.
type ReceiveOptions struct {
	Token  string
	Amount string
	Memo   string
}

// Client is the HTTP client for the goldium service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	rpcID      atomic.Int64
}

// NewClient creates a new goldium service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) walletURL(address, suffix string) string {
	return fmt.Sprintf("%s/api/v1/wallets/%s%s", c.baseURL, url.PathEscape(address), suffix)
}

// do sends the request and decodes a JSON response into out when the
// status matches want.
func (c *Client) do(ctx context.Context, method, u string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetLedger retrieves the ledger of a wallet.
func (c *Client) GetLedger(ctx context.Context, address string) (*Ledger, error) {
	var l Ledger
	if err := c.do(ctx, http.MethodGet, c.walletURL(address, "/ledger"), nil, http.StatusOK, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ClearLedger drops the wallet's transaction history. Balances are kept.
func (c *Client) ClearLedger(ctx context.Context, address string) (*Ledger, error) {
	var l Ledger
	if err := c.do(ctx, http.MethodDelete, c.walletURL(address, "/ledger"), nil, http.StatusOK, &l); err != nil {
		return nil, err
	}
	c.logger.Debug("ledger cleared", "address", address)
	return &l, nil
}

// RecordTransaction adds a record to the wallet's ledger.
func (c *Client) RecordTransaction(ctx context.Context, address string, tx Transaction) (*Ledger, error) {
	var l Ledger
	if err := c.do(ctx, http.MethodPost, c.walletURL(address, "/transactions"), tx, http.StatusCreated, &l); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction recorded", "address", address, "signature", tx.Signature)
	return &l, nil
}

// TrackTransaction asks the server to watch a pending signature until it
// settles. A record that already settled returns its status immediately.
func (c *Client) TrackTransaction(ctx context.Context, address, signature string) (*Tracking, error) {
	u := c.walletURL(address, "/transactions/"+url.PathEscape(signature)+"/track")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}
	var t Tracking
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &t, nil
}

// Receive builds a Solana Pay request for paying the wallet.
func (c *Client) Receive(ctx context.Context, address string, opts ReceiveOptions) (*ReceiveRequest, error) {
	q := url.Values{}
	if opts.Token != "" {
		q.Set("token", opts.Token)
	}
	if opts.Amount != "" {
		q.Set("amount", opts.Amount)
	}
	if opts.Memo != "" {
		q.Set("memo", opts.Memo)
	}
	u := c.walletURL(address, "/receive")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var r ReceiveRequest
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error     string `json:"error"`
		LastError string `json:"lastError"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, LastError: errResp.LastError}
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
	LastError  string
}

func (e *APIError) Error() string {
	if e.LastError != "" {
		return fmt.Sprintf("request failed with status %d: %s (last error: %s)", e.StatusCode, e.Message, e.LastError)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
