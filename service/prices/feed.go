// Package prices fetches token prices, keeps the latest tick per symbol and
// evaluates price alerts.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WrappedSOLMint is the mint Jupiter prices SOL under.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Feed returns current prices keyed by symbol. Symbols it cannot price are
// left out of the result.
type Feed interface {
	Fetch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// JupiterFeed reads the Jupiter price API.
type JupiterFeed struct {
	baseURL    string
	mints      map[string]string // symbol -> mint
	httpClient *http.Client
	logger     *slog.Logger
}

// NewJupiterFeed creates a feed for the symbols in mints. If httpClient is
// nil, a client with a 15 second timeout is used.
func NewJupiterFeed(baseURL string, mints map[string]string, httpClient *http.Client, logger *slog.Logger) *JupiterFeed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JupiterFeed{
		baseURL:    baseURL,
		mints:      mints,
		httpClient: httpClient,
		logger:     logger.With("component", "price_feed"),
	}
}

type jupiterResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Price string `json:"price"`
	} `json:"data"`
}

// Fetch implements Feed.
func (f *JupiterFeed) Fetch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	mintToSymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		mint, ok := f.mints[sym]
		if !ok {
			continue
		}
		mintToSymbol[mint] = sym
		ids = append(ids, mint)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid price API URL: %w", err)
	}
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out jupiterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(out.Data))
	for mint, data := range out.Data {
		sym, ok := mintToSymbol[mint]
		if !ok || data == nil {
			continue
		}
		price, err := decimal.NewFromString(data.Price)
		if err != nil {
			f.logger.WarnContext(ctx, "unparseable price", "symbol", sym, "price", data.Price, "error", err)
			continue
		}
		prices[sym] = price
	}
	return prices, nil
}
